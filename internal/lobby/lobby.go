// Package lobby parses the semicolon separated game string embedded in a
// replay header into match settings and raw slot records.
package lobby

import (
	"fmt"
	"strconv"
	"strings"

	"genrep/internal/replay"
)

// SlotKind identifies what occupies a lobby slot.
type SlotKind int

const (
	SlotUnknown SlotKind = iota
	SlotHuman
	SlotComputer
	SlotClosed
	SlotOpen
)

func (k SlotKind) String() string {
	switch k {
	case SlotHuman:
		return "human"
	case SlotComputer:
		return "computer"
	case SlotClosed:
		return "closed"
	case SlotOpen:
		return "open"
	}
	return "unknown"
}

// Random and observer markers used by the lobby for color and faction.
const (
	Random   = -1
	Observer = -2
)

// Slot is one lobby position as written by the game.
type Slot struct {
	Kind SlotKind
	Raw  string

	Name  string // nickname, or the AI difficulty label
	IP    string // hex encoded, humans only
	Port  string
	Flags string

	Color    int
	Faction  int
	StartPos int
	// Team is the lobby team plus one, so 0 means "no team".
	Team int

	// Difficulty is E, M or H for computer slots.
	Difficulty string
}

// Occupied reports whether the slot receives a player number.
func (s Slot) Occupied() bool {
	return s.Kind == SlotHuman || s.Kind == SlotComputer
}

// IsObserver reports whether a human slot joined as observer.
func (s Slot) IsObserver() bool {
	return s.Kind == SlotHuman && s.Faction == Observer
}

// Config is the parsed game string.
type Config struct {
	Values map[string]string
	Slots  []Slot
}

// Get returns a raw game string value.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Has reports whether key is present with a non-empty value.
func (c *Config) Has(key string) bool {
	return c.Values[key] != ""
}

// MapPath is the M value, or "Unknown".
func (c *Config) MapPath() string {
	if v, ok := c.Values["M"]; ok {
		return v
	}
	return "Unknown"
}

// MapName is the final path element of the map path.
func (c *Config) MapName() string {
	p := c.MapPath()
	if p == "Unknown" {
		return p
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// MapCRC is the MC value.
func (c *Config) MapCRC() string { return c.Values["MC"] }

// StartCash is the SC value, or "Unknown".
func (c *Config) StartCash() string {
	if v, ok := c.Values["SC"]; ok {
		return v
	}
	return "Unknown"
}

// SWRestriction renders the superweapon restriction flag.
func (c *Config) SWRestriction() string {
	switch c.Values["SR"] {
	case "1":
		return "Yes"
	case "0":
		return "No"
	}
	return "Unknown"
}

// Seed is the SD value. Missing or malformed seeds read as 0.
func (c *Config) Seed() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(c.Values["SD"]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// RawSeed is the SD text as written in the game string.
func (c *Config) RawSeed() string { return c.Values["SD"] }

// Host returns the hex IP and port of slot 0 when it is a human.
func (c *Config) Host() (ip, port string, ok bool) {
	if len(c.Slots) == 0 || c.Slots[0].Kind != SlotHuman {
		return "", "", false
	}
	return c.Slots[0].IP, c.Slots[0].Port, true
}

// Parse splits a game string such as
//
//	M=maps/foo;MC=1A;SD=42;S=HName,ip,port,TT,-1,-1,0,-1,1:X:O:;
//
// Semicolons inside the slot list are tolerated, colons split slots only when
// followed by a slot marker.
func Parse(gameString string) (*Config, error) {
	runes := []rune(gameString)
	if len(runes) >= 2 {
		runes = runes[:len(runes)-2]
	} else {
		runes = nil
	}

	parts := strings.Split(string(runes), ";")
	fields := make([]string, 0, len(parts))
	rest := ""
	for i, part := range parts {
		if strings.HasPrefix(part, "S=H") {
			rest = strings.Join(parts[i:], ";")
			break
		}
		fields = append(fields, part)
	}
	fields = append(fields, rest)

	cfg := &Config{Values: make(map[string]string)}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		cfg.Values[k] = v
	}

	if s := cfg.Values["S"]; s != "" {
		for i, tok := range splitSlots(s) {
			slot, err := parseSlot(tok)
			if err != nil {
				return nil, fmt.Errorf("slot %d: %w", i, err)
			}
			cfg.Slots = append(cfg.Slots, slot)
		}
	}

	return cfg, nil
}

func isSlotMarker(b byte) bool {
	return b == 'H' || b == 'C' || b == 'X' || b == 'O'
}

func splitSlots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' && i+1 < len(s) && isSlotMarker(s[i+1]) {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func parseSlot(tok string) (Slot, error) {
	slot := Slot{Raw: tok, Color: Random, Faction: Random}
	switch {
	case tok == "X":
		slot.Kind = SlotClosed
		return slot, nil
	case tok == "O":
		slot.Kind = SlotOpen
		return slot, nil
	case strings.HasPrefix(tok, "H"):
		return parseHuman(slot, strings.Split(tok, ","))
	case strings.HasPrefix(tok, "C"):
		return parseComputer(slot, strings.Split(tok, ","))
	}
	return slot, nil
}

func parseHuman(slot Slot, f []string) (Slot, error) {
	if len(f) < 8 {
		return slot, malformed(slot.Raw, "expected at least 8 fields")
	}
	slot.Kind = SlotHuman
	slot.Name = f[0][1:]
	slot.IP = f[1]
	slot.Port = f[2]
	slot.Flags = f[3]

	var err error
	if slot.Color, err = atoi(slot.Raw, "color", f[4]); err != nil {
		return slot, err
	}
	if slot.Faction, err = atoi(slot.Raw, "faction", f[5]); err != nil {
		return slot, err
	}
	slot.StartPos, _ = strconv.Atoi(f[6])
	team, err := atoi(slot.Raw, "team", f[7])
	if err != nil {
		return slot, err
	}
	slot.Team = team + 1
	return slot, nil
}

func parseComputer(slot Slot, f []string) (Slot, error) {
	if len(f) < 5 {
		return slot, malformed(slot.Raw, "expected at least 5 fields")
	}
	slot.Kind = SlotComputer
	slot.Difficulty = f[0][1:]
	slot.Name = ComputerName(slot.Difficulty)

	var err error
	if slot.Color, err = atoi(slot.Raw, "color", f[1]); err != nil {
		return slot, err
	}
	if slot.Faction, err = atoi(slot.Raw, "faction", f[2]); err != nil {
		return slot, err
	}
	slot.StartPos, _ = strconv.Atoi(f[3])
	team, err := atoi(slot.Raw, "team", f[4])
	if err != nil {
		return slot, err
	}
	slot.Team = team + 1
	return slot, nil
}

// ComputerName maps an AI difficulty letter to its display label.
func ComputerName(difficulty string) string {
	switch difficulty {
	case "E":
		return "Easy AI"
	case "M":
		return "Medi AI"
	case "H":
		return "Hard AI"
	}
	return "AI"
}

func atoi(raw, field, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &replay.FormatError{Reason: fmt.Sprintf("slot %q has invalid %s", raw, field), Err: err}
	}
	return n, nil
}

func malformed(raw, why string) error {
	return &replay.FormatError{Reason: fmt.Sprintf("slot %q malformed: %s", raw, why)}
}
