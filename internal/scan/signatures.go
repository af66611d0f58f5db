package scan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// Order types seen in the command stream.
const (
	MsgClearReplay  = 27
	MsgSelectGroup  = 1001
	MsgDestroyGroup = 1003
	MsgSelfDestruct = 1093
	MsgLogicCRC     = 1095
)

// Regexps over the hex stream. A "." stands for a player nibble or any
// payload character.
var (
	selfDestructRe = regexp.MustCompile(`450400000.000000010201`)
	anyMessageRe   = regexp.MustCompile(`00....00000.0000000`)
	endMessageRe   = regexp.MustCompile(`00....00000.000000`)

	// Ability and area-attack orders that carry a target object id in their
	// final 8 characters.
	targetOrderRe = regexp.MustCompile(strings.Join([]string{
		`......00230400000.000000010301........`,
		`........0f0400000.00000003000103010001................`,
		`........120400000.000000040001030100010301................`,
		`........110400000.00000006000106010101030100010301................................................`,
	}, "|"))
)

// validTypes holds the little-endian type field of every order a player can
// issue: clear replay and 1001 through 1097.
var validTypes = func() map[string]bool {
	m := map[string]bool{LE32(MsgClearReplay): true}
	for t := 1001; t <= 1097; t++ {
		m[LE32(t)] = true
	}
	return m
}()

// housekeeping orders are sent constantly and never signal activity.
var housekeeping = lo.Map([]int{
	27, 1003, 1001, 1016, 1017, 1018, 1019, 1020, 1021, 1022,
	1023, 1024, 1025, 1058, 1075, 1093, 1095, 1097,
}, func(t int, _ int) string {
	return "00" + LE32(t) + "0"
})

// IsValidType reports whether an 8 character LE type field is a player order.
func IsValidType(typeHex string) bool {
	return validTypes[typeHex]
}

// IsHousekeeping reports whether a message text starts with an excluded order.
func IsHousekeeping(msg string) bool {
	return lo.ContainsBy(housekeeping, func(p string) bool {
		return strings.HasPrefix(msg, p)
	})
}

// SelfDestruct is the self destruct signature of player p.
func SelfDestruct(p int) string {
	return fmt.Sprintf("450400000%x000000010201", p)
}

// LogicCRC is the logic CRC check signature of player p.
func LogicCRC(p int) string {
	return fmt.Sprintf("470400000%x0000000200010201", p)
}

// DestroyGroup is the destroy-selected-group signature of player p.
func DestroyGroup(p int) string {
	return fmt.Sprintf("eb0300000%x00000001020101", p)
}

// ClearReplay is the trailing clear replay signature of player p.
func ClearReplay(p int) string {
	return fmt.Sprintf("1b0000000%x00000000", p)
}

// SelectGroupRe matches player p's select-group orders and captures the
// selected object id.
func SelectGroupRe(p int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`00e90300000%x000000020201030101(.{8})`, p))
}

func playerMessageRe(p int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`00....00000%x000000`, p))
}

func crcAnyFrameRe(p int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`........470400000%x0000000200010201`, p))
}

// messageType is the type field of a "00...." style message text.
func messageType(msg string) string {
	if len(msg) < 10 {
		return ""
	}
	return msg[2:10]
}

// messagePlayer is the player nibble of a "00...." style message text.
func messagePlayer(msg string) int {
	if len(msg) < 12 {
		return -1
	}
	return Nibble(msg[11:12])
}
