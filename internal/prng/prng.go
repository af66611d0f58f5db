// Package prng reproduces the game's 192-bit pseudo-random generator.
// It is only used to recover the factions and colors the lobby randomized.
package prng

var magic = [6]uint32{
	0xf22d0e56,
	0x883126e9,
	0xc624dd2f,
	0x0702c49c,
	0x9e353f7d,
	0x6fdf3b64,
}

// Generator holds six words of state. The zero value is not useful, use New.
type Generator struct {
	s [6]uint32
}

// New expands a match seed into the initial generator state.
func New(seed uint32) *Generator {
	g := &Generator{}
	g.s[0] = seed + magic[0]
	for i := 1; i < len(magic); i++ {
		g.s[i] = g.s[i-1] + (magic[i] - magic[i-1])
	}
	return g
}

// Generate advances the state and returns the new first word.
func (g *Generator) Generate() uint32 {
	s := &g.s

	var carry uint64
	for i := 4; i >= 0; i-- {
		sum := uint64(s[i]) + uint64(s[i+1]) + carry
		s[i] = uint32(sum)
		carry = sum >> 32
	}

	if s[5] == 0xFFFFFFFF {
		s[5] = 0
		for i := 4; i >= 0; i-- {
			if s[i] != 0xFFFFFFFF {
				s[i]++
				break
			}
			s[i] = 0
		}
	} else {
		s[5]++
	}

	return s[0]
}

// Value returns a draw in [min, max]. A reversed range returns max untouched
// and does not advance the generator.
func (g *Generator) Value(min, max int) int {
	diff := max - min + 1
	if diff <= 0 {
		return max
	}
	return int(uint64(g.Generate())%uint64(diff)) + min
}

// State exposes a copy of the internal words, mainly for tests.
func (g *Generator) State() [6]uint32 {
	return g.s
}
