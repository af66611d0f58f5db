package scantest

import (
	"encoding/hex"

	"genrep/internal/replay"
)

// DuelGameString is a two player lobby: Alpha on team 1 in slot 0 and
// Bravo on team 2, both with fixed factions and colors.
const DuelGameString = "M=maps/tournament desert;MC=ABCD1234;SD=987654;SR=0;SC=10000;" +
	"S=HAlpha,1A2B3C4D,8088,TT,1,2,-1,0,1:HBravo,5A5A5A5A,8088,TT,2,4,-1,1,1:X:X:X:X:X:X:;"

// Bytes returns the stream as the bytes a replay file would hold.
func (s *Stream) Bytes() []byte {
	b, err := hex.DecodeString(s.sb.String())
	if err != nil {
		panic(err)
	}
	return b
}

// Header returns a plausible 1.04 header for gameString, recorded on
// 2024-03-15 at 10:53:20 UTC.
func Header(gameString string) *replay.Header {
	return &replay.Header{
		BeginTimestamp: 1710500000,
		EndTimestamp:   1710500600,
		TotalFrames:    9000,
		FileName:       "10-53-20_1v1",
		SystemTime:     replay.SystemTime{Year: 2024, Month: 3, DayOfWeek: 5, Day: 15, Hour: 11, Minute: 53, Second: 20},
		VersionString:  "Version 1.04",
		BuildDate:      "Oct  9 2003 16:41:28",
		VersionMinor:   4,
		VersionMajor:   1,
		ExeCRC:         3660270360,
		IniCRC:         4272612339,
		GameString:     gameString,
	}
}

// DuelWin is a finished duel in which Bravo leaves at frame 3000 and the
// local player Alpha wins.
func DuelWin() *Stream {
	var s Stream
	s.Broadcast(300, 1, 2, 3).
		Order(2900, 1049, 3).
		SelfDestruct(3000, 3, 1).
		Broadcast(3300, 7, 2).
		ClearReplay(3310, 2)
	return &s
}

// File encodes a complete replay file.
func File(h *replay.Header, s *Stream) []byte {
	data, err := replay.Encode(h, s.Bytes())
	if err != nil {
		panic(err)
	}
	return data
}

// DuelFile is DuelWin recorded under DuelGameString.
func DuelFile() []byte {
	return File(Header(DuelGameString), DuelWin())
}
