// Package scantest fabricates command streams for tests.
package scantest

import (
	"fmt"
	"strings"

	"genrep/internal/scan"
)

// Stream accumulates hex encoded messages.
type Stream struct {
	sb strings.Builder
}

func frame(f int) string { return scan.LE32(f) }

// Raw appends arbitrary hex.
func (s *Stream) Raw(h string) *Stream {
	s.sb.WriteString(h)
	return s
}

// Order appends a generic order of the given type.
func (s *Stream) Order(f, msgType, p int) *Stream {
	s.sb.WriteString(frame(f) + scan.LE32(msgType) + scan.LE32(p) + "00")
	return s
}

// CRC appends a logic CRC check.
func (s *Stream) CRC(f, p int, crc uint32) *Stream {
	s.sb.WriteString(frame(f) + scan.LogicCRC(p) + scan.LE32(int(crc)) + "00")
	return s
}

// Broadcast appends one CRC check per player in the same frame.
func (s *Stream) Broadcast(f int, crc uint32, players ...int) *Stream {
	for _, p := range players {
		s.CRC(f, p, crc)
	}
	return s
}

// SelfDestruct appends a self destruct order. A zero arg marks a vote or
// countdown kick.
func (s *Stream) SelfDestruct(f, p, arg int) *Stream {
	s.sb.WriteString(frame(f) + scan.SelfDestruct(p) + fmt.Sprintf("%02x", arg))
	return s
}

// DestroyGroup appends a destroy-selected-group order.
func (s *Stream) DestroyGroup(f, p int) *Stream {
	s.sb.WriteString(frame(f) + scan.DestroyGroup(p))
	return s
}

// SelectGroup appends a select-group order for an object id.
func (s *Stream) SelectGroup(f, p, object int) *Stream {
	s.sb.WriteString(frame(f) + scan.LE32(scan.MsgSelectGroup) + scan.LE32(p) + "020201030101" + scan.LE32(object))
	return s
}

// AreaAttack appends a targeted order aimed at object.
func (s *Stream) AreaAttack(f, p, object int) *Stream {
	s.sb.WriteString(frame(f) + "23040000" + scan.LE32(p) + "010301" + scan.LE32(object))
	return s
}

// ClearReplay appends the clear replay message that closes a normal replay.
func (s *Stream) ClearReplay(f, p int) *Stream {
	s.sb.WriteString(frame(f) + scan.ClearReplay(p))
	return s
}

// Body returns the accumulated stream.
func (s *Stream) Body() scan.Body {
	return scan.Body(s.sb.String())
}

// String returns the accumulated hex.
func (s *Stream) String() string {
	return s.sb.String()
}
