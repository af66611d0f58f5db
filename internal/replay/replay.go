// Package replay decodes the fixed GENREP header and exposes the rest of the
// file as a lowercase hex command stream.
package replay

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Magic is the literal every replay starts with.
const Magic = "GENREP"

// SystemTime mirrors the Windows SYSTEMTIME record written at match start,
// in the recording machine's local time.
type SystemTime struct {
	Year         uint16 `json:"year"`
	Month        uint16 `json:"month"`
	DayOfWeek    uint16 `json:"dayOfWeek"`
	Day          uint16 `json:"day"`
	Hour         uint16 `json:"hour"`
	Minute       uint16 `json:"minute"`
	Second       uint16 `json:"second"`
	Milliseconds uint16 `json:"milliseconds"`
}

// Time interprets the record as a wall clock reading tagged UTC.
func (s SystemTime) Time() time.Time {
	return time.Date(int(s.Year), time.Month(s.Month), int(s.Day),
		int(s.Hour), int(s.Minute), int(s.Second), int(s.Milliseconds)*int(time.Millisecond), time.UTC)
}

// Header is the decoded fixed part of a replay.
type Header struct {
	BeginTimestamp   uint32     `json:"beginTimestamp"`
	EndTimestamp     uint32     `json:"endTimestamp"`
	TotalFrames      uint32     `json:"totalFrames"`
	Desync           uint8      `json:"desync"`
	EarlyQuit        uint8      `json:"earlyQuit"`
	Disconnect       [8]uint8   `json:"disconnect"`
	FileName         string     `json:"fileName"`
	SystemTime       SystemTime `json:"systemTime"`
	VersionString    string     `json:"versionString"`
	BuildDate        string     `json:"buildDate"`
	VersionMinor     uint16     `json:"versionMinor"`
	VersionMajor     uint16     `json:"versionMajor"`
	ExeCRC           uint32     `json:"exeCrc"`
	IniCRC           uint32     `json:"iniCrc"`
	GameString       string     `json:"gameString"`
	LocalPlayerIndex int        `json:"localPlayerIndex"`
	Difficulty       int32      `json:"difficulty"`
	GameMode         int32      `json:"gameMode"`
	RankPoints       int32      `json:"rankPoints"`
	MaxFPS           int32      `json:"maxFps"`

	// IsCorrupt is set when the game string bytes were not valid UTF-8.
	IsCorrupt bool `json:"isCorrupt"`
}

// Begin returns the match start as a UTC time.
func (h *Header) Begin() time.Time {
	return time.Unix(int64(h.BeginTimestamp), 0).UTC()
}

// End returns the match end as a UTC time.
func (h *Header) End() time.Time {
	return time.Unix(int64(h.EndTimestamp), 0).UTC()
}

// Replay is a decoded file: header plus hex body.
type Replay struct {
	Header Header
	Body   string
}

type fixedTimes struct {
	Begin, End, TotalFrames uint32
	Desync, EarlyQuit       uint8
	Disconnect              [8]uint8
}

type fixedVersion struct {
	Minor, Major   uint16
	ExeCRC, IniCRC uint32
}

type fixedTrailer struct {
	Difficulty, GameMode, RankPoints, MaxFPS int32
}

// DecodeReader reads the whole stream and decodes it.
func DecodeReader(r io.Reader) (*Replay, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}
	return Decode(data)
}

// Decode parses a complete replay file held in memory.
func Decode(data []byte) (*Replay, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, notReplay()
	}

	r := bytes.NewReader(data[len(Magic):])
	var h Header

	var t fixedTimes
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return nil, truncated("timestamps", err)
	}
	h.BeginTimestamp, h.EndTimestamp, h.TotalFrames = t.Begin, t.End, t.TotalFrames
	h.Desync, h.EarlyQuit, h.Disconnect = t.Desync, t.EarlyQuit, t.Disconnect

	h.FileName = decodeWide(readWide(r))

	if err := binary.Read(r, binary.LittleEndian, &h.SystemTime); err != nil {
		return nil, truncated("system time", err)
	}

	h.VersionString = decodeWide(readWide(r))
	h.BuildDate = decodeWide(readWide(r))

	var v fixedVersion
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return nil, truncated("version", err)
	}
	h.VersionMinor, h.VersionMajor, h.ExeCRC, h.IniCRC = v.Minor, v.Major, v.ExeCRC, v.IniCRC

	game := readNarrow(r)
	h.GameString = decodeNarrow(game)
	h.IsCorrupt = !utf8.Valid(game)

	idx, err := strconv.Atoi(strings.TrimSpace(decodeNarrow(readNarrow(r))))
	if err == nil {
		h.LocalPlayerIndex = idx
	}

	var tr fixedTrailer
	if err := binary.Read(r, binary.LittleEndian, &tr); err != nil {
		return nil, truncated("game options", err)
	}
	h.Difficulty, h.GameMode, h.RankPoints, h.MaxFPS = tr.Difficulty, tr.GameMode, tr.RankPoints, tr.MaxFPS

	rest := data[len(data)-r.Len():]
	return &Replay{Header: h, Body: hex.EncodeToString(rest)}, nil
}

// readWide consumes 2-byte units up to and including a 0x0000 terminator.
// A dangling odd byte at end of input is kept.
func readWide(r *bytes.Reader) []byte {
	var out []byte
	unit := make([]byte, 2)
	for {
		n, _ := io.ReadFull(r, unit)
		if n == 0 {
			return out
		}
		if n == 2 && unit[0] == 0 && unit[1] == 0 {
			return out
		}
		out = append(out, unit[:n]...)
		if n < 2 {
			return out
		}
	}
}

// readNarrow consumes bytes up to and including a 0x00 terminator.
func readNarrow(r *bytes.Reader) []byte {
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil || b == 0 {
			return out
		}
		out = append(out, b)
	}
}

// Encode writes a header and raw body back into the on-disk layout.
// Strings are written as UTF-16LE and UTF-8 respectively. A text field
// holding a NUL cannot be terminated and yields an *EncodingError.
func Encode(h *Header, body []byte) ([]byte, error) {
	for _, f := range []struct{ name, value string }{
		{"file name", h.FileName},
		{"version", h.VersionString},
		{"build date", h.BuildDate},
		{"game string", h.GameString},
	} {
		if strings.IndexByte(f.value, 0) >= 0 {
			return nil, &EncodingError{Field: f.name, Err: errNUL}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(Magic)

	le := binary.LittleEndian
	if err := binary.Write(&buf, le, fixedTimes{
		Begin: h.BeginTimestamp, End: h.EndTimestamp, TotalFrames: h.TotalFrames,
		Desync: h.Desync, EarlyQuit: h.EarlyQuit, Disconnect: h.Disconnect,
	}); err != nil {
		return nil, fmt.Errorf("failed to write timestamps: %w", err)
	}
	buf.Write(encodeWide(h.FileName))
	buf.Write([]byte{0, 0})
	if err := binary.Write(&buf, le, h.SystemTime); err != nil {
		return nil, fmt.Errorf("failed to write system time: %w", err)
	}
	buf.Write(encodeWide(h.VersionString))
	buf.Write([]byte{0, 0})
	buf.Write(encodeWide(h.BuildDate))
	buf.Write([]byte{0, 0})
	if err := binary.Write(&buf, le, fixedVersion{Minor: h.VersionMinor, Major: h.VersionMajor, ExeCRC: h.ExeCRC, IniCRC: h.IniCRC}); err != nil {
		return nil, fmt.Errorf("failed to write version: %w", err)
	}
	buf.WriteString(h.GameString)
	buf.WriteByte(0)
	buf.WriteString(strconv.Itoa(h.LocalPlayerIndex))
	buf.WriteByte(0)
	if err := binary.Write(&buf, le, fixedTrailer{Difficulty: h.Difficulty, GameMode: h.GameMode, RankPoints: h.RankPoints, MaxFPS: h.MaxFPS}); err != nil {
		return nil, fmt.Errorf("failed to write trailer: %w", err)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}
