package outcome

import (
	"maps"

	"github.com/samber/lo"

	"genrep/internal/scan"
	"genrep/internal/slots"
)

// active marks a team member that never quit.
const active = -1

// Frames records the classified quit events of one player. Every field is
// a frame number except LastCRC, which is the checksum the player sent in
// the local player's final CRC broadcast.
type Frames struct {
	Surrender *int `json:"surrender,omitempty"`
	Exit      *int `json:"exit,omitempty"`
	Ambiguous *int `json:"ambiguous,omitempty"`
	Idle      *int `json:"idle,omitempty"`
	LastCRC   *int `json:"lastCrc,omitempty"`
}

func intp(v int) *int { return &v }

func (f *Frames) clone() *Frames {
	c := &Frames{}
	for _, p := range []struct{ dst, src **int }{
		{&c.Surrender, &f.Surrender},
		{&c.Exit, &f.Exit},
		{&c.Ambiguous, &f.Ambiguous},
		{&c.Idle, &f.Idle},
		{&c.LastCRC, &f.LastCRC},
	} {
		if *p.src != nil {
			*p.dst = intp(**p.src)
		}
	}
	return c
}

type member struct {
	player int
	quit   int
}

type team struct {
	number  int
	members []member
}

func (t team) hasActive() bool {
	return lo.ContainsBy(t.members, func(m member) bool { return m.quit == active })
}

func (t team) lastQuit() int {
	return lo.Max(lo.Map(t.members, func(m member, _ int) int { return m.quit }))
}

func (t team) has(p int) bool {
	return lo.ContainsBy(t.members, func(m member) bool { return m.player == p })
}

// idleMark tracks a player found idle. Frame is set once a targeted order
// against the player's objects pins down the kick moment.
type idleMark struct {
	index int
	frame *int
}

// state is the match as understood after one reconstruction step. Steps
// never modify the state they receive; they return a new one.
type state struct {
	quits  scan.QuitIndex
	teams  []team
	frames map[int]*Frames
	idle   map[int]idleMark

	found   bool
	winner  int
	text    string
	winText string
	review  string

	endFrame   int
	finalFrame int

	placement  map[int]int
	eliminated map[int]int
}

func newState(r *slots.Roster, quits scan.QuitIndex) *state {
	s := &state{
		quits:    quits,
		frames:   make(map[int]*Frames, len(r.Players)),
		idle:     make(map[int]idleMark),
		endFrame: r.EndFrame,
	}
	for _, p := range r.Players {
		s.frames[p.Number] = &Frames{}
	}
	for _, t := range r.Teams {
		s.teams = append(s.teams, team{
			number: t.Number,
			members: lo.Map(t.Members, func(p int, _ int) member {
				return member{player: p, quit: active}
			}),
		})
	}
	return s
}

func (s *state) clone() *state {
	c := *s
	c.quits = s.quits.Clone()
	c.teams = lo.Map(s.teams, func(t team, _ int) team {
		return team{number: t.number, members: append([]member(nil), t.members...)}
	})
	c.frames = make(map[int]*Frames, len(s.frames))
	for p, f := range s.frames {
		c.frames[p] = f.clone()
	}
	c.idle = maps.Clone(s.idle)
	c.placement = maps.Clone(s.placement)
	c.eliminated = maps.Clone(s.eliminated)
	return &c
}

// frame returns the frames of p, allocating an empty record for numbers
// outside the roster so lookups never fail.
func (s *state) frame(p int) *Frames {
	f, ok := s.frames[p]
	if !ok {
		f = &Frames{}
		s.frames[p] = f
	}
	return f
}

func (s *state) team(number int) (team, bool) {
	return lo.Find(s.teams, func(t team) bool { return t.number == number })
}

// syncTeamQuits copies each member's first quit offset into the team table.
// Members without quits keep their previous value.
func (s *state) syncTeamQuits() {
	for i := range s.teams {
		for j := range s.teams[i].members {
			m := &s.teams[i].members[j]
			if q, ok := s.quits.First(m.player); ok {
				m.quit = q
			}
		}
	}
}

func (s *state) setTeamQuit(p, quit int) {
	for i := range s.teams {
		for j := range s.teams[i].members {
			if s.teams[i].members[j].player == p {
				s.teams[i].members[j].quit = quit
			}
		}
	}
}

// findWinner applies the explicit rule: the only team with an active member
// wins; with none active, the team that held on longest wins.
func (s *state) findWinner() (bool, int) {
	remaining := -1
	var bestTeam, bestQuit int
	haveQuit := false
	for _, t := range s.teams {
		if t.hasActive() {
			if remaining >= 0 {
				return false, 0
			}
			remaining = t.number
			continue
		}
		if q := t.lastQuit(); !haveQuit || q > bestQuit {
			bestTeam, bestQuit, haveQuit = t.number, q, true
		}
	}
	if remaining >= 0 {
		return true, remaining
	}
	return haveQuit, bestTeam
}

// lastLoserQuit is the latest quit offset among players outside the winning
// team, with its team and player. The first maximum wins ties.
func (s *state) lastLoserQuit() (teamNum, player, index int, ok bool) {
	index = -1
	for _, t := range s.teams {
		if t.number == s.winner {
			continue
		}
		for _, m := range t.members {
			if !ok || m.quit > index {
				teamNum, player, index, ok = t.number, m.player, m.quit, true
			}
		}
	}
	return teamNum, player, index, ok
}

func (s *state) idleIndexes() []int {
	return lo.Map(lo.Values(s.idle), func(m idleMark, _ int) int { return m.index })
}
