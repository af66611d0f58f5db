package scan

import (
	"regexp"
	"sort"

	"github.com/samber/lo"
)

// QuitIndex maps a player number to the offsets of every self destruct
// message that player sent, in stream order.
type QuitIndex map[int][]int

// Clone returns a deep copy.
func (q QuitIndex) Clone() QuitIndex {
	out := make(QuitIndex, len(q))
	for p, offs := range q {
		out[p] = append([]int(nil), offs...)
	}
	return out
}

// Has reports whether p has at least one quit offset.
func (q QuitIndex) Has(p int) bool {
	return len(q[p]) > 0
}

// First is p's earliest quit offset.
func (q QuitIndex) First(p int) (int, bool) {
	if len(q[p]) == 0 {
		return 0, false
	}
	return q[p][0], true
}

// IndexQuits finds every self destruct message and groups it by player.
func IndexQuits(b Body) QuitIndex {
	q := make(QuitIndex)
	for _, m := range b.FindAll(selfDestructRe) {
		p := Nibble(m.Text[9:10])
		q[p] = append(q[p], m.Start)
	}
	return q
}

// CRCBroadcast is the local player's final logic CRC check and every other
// player's check in the same frame.
type CRCBroadcast struct {
	// Index is the offset of the local player's signature, -1 when the
	// replay holds no CRC check for that player.
	Index    int
	FrameHex string
	CRCHex   string
	// Players maps player number to the offset where its entry's frame
	// field begins.
	Players map[int]int
}

// Found reports whether the local player ever sent a CRC check.
func (c CRCBroadcast) Found() bool { return c.Index >= 0 }

// Frame is the decoded broadcast frame.
func (c CRCBroadcast) Frame() int { return LE(c.FrameHex) }

// Has reports whether p took part in the broadcast.
func (c CRCBroadcast) Has(p int) bool {
	_, ok := c.Players[p]
	return ok
}

// LastCRC locates the last CRC check sent by local and the broadcast it
// belongs to.
func LastCRC(b Body, local int) CRCBroadcast {
	c := CRCBroadcast{Index: b.LastIndex(LogicCRC(local)), Players: map[int]int{}}
	if c.Index < 0 {
		return c
	}
	c.FrameHex = b.FrameHex(c.Index)
	c.CRCHex = b.CRCHexAt(c.Index)

	re := regexp.MustCompile(regexp.QuoteMeta(c.FrameHex) + `470400000.0000000200010201`)
	for _, m := range b.FindAll(re) {
		c.Players[Nibble(m.Text[17:18])] = m.Start
	}
	return c
}

// PreviousCRC finds local's CRC check before the one at index.
func PreviousCRC(b Body, local, index int) int {
	return b.LastIndexBefore(LogicCRC(local), index)
}

// CRCFrames lists the frame field of every CRC check sent by p.
func CRCFrames(b Body, p int) []string {
	return lo.Map(b.FindAll(crcAnyFrameRe(p)), func(m Match, _ int) string {
		return m.Text[:8]
	})
}

// FirstCRCPlayers returns the players present in the very first CRC
// broadcast, ascending. It is empty when fewer than two players appear.
func FirstCRCPlayers(b Body) []int {
	i := b.Index("00470400000")
	if i < 0 {
		return nil
	}
	frameHex := b.sub(i-6, i+2)
	re := regexp.MustCompile(regexp.QuoteMeta(frameHex) + `470400000.`)

	seen := lo.Uniq(lo.Map(b.FindAll(re), func(m Match, _ int) string { return m.Text }))
	if len(seen) < 2 {
		return nil
	}
	players := lo.Map(seen, func(s string, _ int) int { return Nibble(s[len(s)-1:]) })
	sort.Ints(players)
	return players
}

// LastDestroyFrameHex is the frame field of p's last destroy-selected-group
// order, empty when p never sent one.
func LastDestroyFrameHex(b Body, p int) string {
	i := b.LastIndex("00" + DestroyGroup(p))
	if i < 0 {
		return ""
	}
	return b.sub(i-6, i+2)
}

// ClearReplayPlayer returns the player nibble of a trailing clear replay
// message. ok is false when the stream does not end with one, which happens
// when the game crashed or was aborted.
func ClearReplayPlayer(b Body) (p int, ok bool) {
	if len(b) < 18 || string(b[len(b)-18:len(b)-10]) != "1b000000" {
		return 0, false
	}
	return Nibble(string(b[len(b)-9 : len(b)-8])), true
}

// ClearReplayFrameHex is the frame field of the trailing clear replay
// message.
func ClearReplayFrameHex(b Body) string {
	if len(b) < 26 {
		return ""
	}
	return string(b[len(b)-26 : len(b)-18])
}

// LastValidMessageFrame is the frame of the last player order found in the
// final window characters of the stream.
func LastValidMessageFrame(b Body, window int) (int, bool) {
	msgs := Body(b.Tail(window)).FindAll(anyMessageRe)
	for i := len(msgs) - 1; i >= 0; i-- {
		if IsValidType(messageType(msgs[i].Text)) {
			idx := b.LastIndex(msgs[i].Text)
			return b.Frame(idx + 2), true
		}
	}
	return 0, false
}

// LastOrderBefore finds player p's newest meaningful order sent at or
// before maxFrame. The returned offset points at the order's type field, so
// Frame(offset) is its frame.
func LastOrderBefore(b Body, p, maxFrame int) (offset int, ok bool) {
	msgs := lo.Filter(b.FindAll(playerMessageRe(p)), func(m Match, _ int) bool {
		return !IsHousekeeping(m.Text)
	})
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i].Text
		if messagePlayer(msg) != p || !IsValidType(messageType(msg)) {
			continue
		}
		off := b.LastIndex(msg) + 2
		if b.Frame(off) <= maxFrame {
			return off, true
		}
	}
	return 0, false
}

// OrdersFrom lists meaningful order texts found from start to the end of
// the stream. A negative start counts from the end.
func OrdersFrom(b Body, start int) []string {
	tail := Body(b.from(start))
	return lo.FilterMap(tail.FindAll(endMessageRe), func(m Match, _ int) (string, bool) {
		return m.Text, !IsHousekeeping(m.Text)
	})
}

// LastSender returns the sender of the last valid order in msgs, preferring
// one that is in players. The result may be outside players when none is.
func LastSender(msgs []string, players []int) (int, bool) {
	found := false
	sender := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if !IsValidType(messageType(msgs[i])) {
			continue
		}
		sender, found = messagePlayer(msgs[i]), true
		if lo.Contains(players, sender) {
			break
		}
	}
	return sender, found
}

// SelectedObjects returns the object ids player p selected at least
// minClicks times.
func SelectedObjects(b Body, p, minClicks int) []int {
	counts := map[string]int{}
	var order []string
	for _, m := range SelectGroupRe(p).FindAllStringSubmatch(string(b), -1) {
		if counts[m[1]] == 0 {
			order = append(order, m[1])
		}
		counts[m[1]]++
	}
	return lo.FilterMap(order, func(id string, _ int) (int, bool) {
		return LE(id), counts[id] >= minClicks
	})
}

// TargetOrders returns, newest first, up to two offsets of targeted orders
// in b[from:to] aimed at one of objects. Offsets point at the order's type
// field of the first occurrence of the same text.
func TargetOrders(b Body, from, to int, objects []int) []int {
	if len(objects) == 0 {
		return nil
	}
	window := Body(b.sub(from, to))
	matches := window.FindAll(targetOrderRe)

	var out []int
	for i := len(matches) - 1; i >= 0 && len(out) < 2; i-- {
		text := matches[i].Text
		if lo.Contains(objects, LE(text[len(text)-8:])) {
			out = append(out, b.Index(text)+8)
		}
	}
	return out
}
