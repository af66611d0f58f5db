// Package slots turns lobby slots into numbered players and teams. It infers
// the player number base from the command stream and replays the lobby's
// faction and color randomization.
package slots

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"genrep/internal/lobby"
	"genrep/internal/prng"
	"genrep/internal/replay"
	"genrep/internal/scan"
	"genrep/internal/versions"
)

// DefaultOffset is the player number of the first occupied slot on most maps.
const DefaultOffset = 2

// Player is a resolved, numbered lobby participant.
type Player struct {
	Number int            `json:"number"`
	Slot   int            `json:"slot"`
	Kind   lobby.SlotKind `json:"kind"`
	Name   string         `json:"name"`
	// Nick is the name used for match ids. It is "player" when a corrupt
	// header mangled the nickname.
	Nick string `json:"nick"`
	IP   string `json:"ip"`

	Color             int  `json:"color"`
	Faction           int  `json:"faction"`
	FactionRandomized bool `json:"factionRandomized"`
	ColorRandomized   bool `json:"colorRandomized"`

	// Team is 0 for observers and for computers that sit out.
	Team     int  `json:"team"`
	Observer bool `json:"observer"`
}

// IsComputer reports whether the player is an AI.
func (p Player) IsComputer() bool { return p.Kind == lobby.SlotComputer }

// Team lists the player numbers of one team in join order.
type Team struct {
	Number  int   `json:"number"`
	Members []int `json:"members"`
}

// Roster is the outcome of slot resolution.
type Roster struct {
	Players []Player
	// Teams keeps lobby order, followed by the teams created for players
	// that had none.
	Teams []Team

	Local        int
	Offset       int
	NormalEnding bool
	EndFrame     int

	ComputerInGame bool
	// PlayerNums holds every non-observer, computers included.
	PlayerNums   []int
	ObserverNums []int
	Nicks        []string
}

// Player looks up a player by number.
func (r *Roster) Player(num int) (Player, bool) {
	return lo.Find(r.Players, func(p Player) bool { return p.Number == num })
}

// Team looks up a team by number.
func (r *Roster) Team(num int) (Team, bool) {
	return lo.Find(r.Teams, func(t Team) bool { return t.Number == num })
}

// TeamOf returns the team number of a player, or 0.
func (r *Roster) TeamOf(num int) int {
	p, _ := r.Player(num)
	return p.Team
}

// IsObserver reports whether num joined as observer.
func (r *Roster) IsObserver(num int) bool {
	return lo.Contains(r.ObserverNums, num)
}

// IsPlayer reports whether num is a non-observer participant.
func (r *Roster) IsPlayer(num int) bool {
	return lo.Contains(r.PlayerNums, num)
}

// MatchType joins the ascending team sizes with "v", e.g. "1v1" or "2v2".
func (r *Roster) MatchType() string {
	sizes := lo.Map(r.Teams, func(t Team, _ int) int { return len(t.Members) })
	sort.Ints(sizes)
	return strings.Join(lo.Map(sizes, func(n int, _ int) string { return strconv.Itoa(n) }), "v")
}

// Resolve numbers the occupied slots of cfg and assigns teams, factions and
// colors. Only an empty lobby is an error. Debug lines go to logger.
func Resolve(cfg *lobby.Config, hdr *replay.Header, body scan.Body, table *versions.Table, logger zerolog.Logger) (*Roster, error) {
	logger = logger.With().Str("component", "slots").Logger()

	ordinals := occupiedOrdinals(cfg.Slots)
	if len(ordinals) == 0 {
		return nil, &replay.FormatError{Reason: "game string has no occupied slots"}
	}

	localOrdinal, ok := ordinals[hdr.LocalPlayerIndex]
	if !ok {
		logger.Debug().Int("slot", hdr.LocalPlayerIndex).
			Msg("local slot is not occupied, using the first player")
	}

	r := &Roster{}
	r.Local, r.Offset, r.NormalEnding = inferOffset(body, localOrdinal, len(ordinals))

	r.EndFrame = int(hdr.TotalFrames)
	if !r.NormalEnding {
		if f, ok := scan.LastValidMessageFrame(body, 10000); ok {
			r.EndFrame = f
		}
	}

	r.addPlayers(cfg.Slots, hdr.IsCorrupt, logger)
	randomize(r.Players, cfg, table)
	r.foldTeamless()

	logger.Debug().
		Int("local", r.Local).Int("offset", r.Offset).Bool("normal", r.NormalEnding).
		Str("type", r.MatchType()).Msg("slots resolved")
	return r, nil
}

// occupiedOrdinals maps a slot index to its position among occupied slots.
func occupiedOrdinals(slots []lobby.Slot) map[int]int {
	out := make(map[int]int)
	n := 0
	for i, s := range slots {
		if s.Occupied() {
			out[i] = n
			n++
		}
	}
	return out
}

// inferOffset derives the local player number and the player number base.
// The first CRC broadcast lists every player when the numbering is intact;
// a trailing clear replay message names the local player authoritatively.
func inferOffset(body scan.Body, localOrdinal, occupied int) (local, offset int, normal bool) {
	offset = DefaultOffset
	tailPlayer, normal := scan.ClearReplayPlayer(body)
	nums := scan.FirstCRCPlayers(body)

	if len(nums) > 0 && len(nums) == occupied {
		offset = nums[0]
		local = offset + localOrdinal
		if normal {
			local = tailPlayer
			offset = max(offset, DefaultOffset)
		}
		return local, offset, normal
	}

	if len(nums) > 0 {
		offset = nums[0]
		if normal {
			local = tailPlayer
			offset = max(local-localOrdinal, DefaultOffset)
			return local, offset, true
		}
	}
	return offset + localOrdinal, offset, normal
}

func (r *Roster) addPlayers(slots []lobby.Slot, corrupt bool, logger zerolog.Logger) {
	n := 0
	for i, s := range slots {
		if !s.Occupied() {
			continue
		}
		p := Player{
			Number:            r.Offset + n,
			Slot:              i,
			Kind:              s.Kind,
			Name:              s.Name,
			Nick:              s.Name,
			IP:                s.IP,
			Color:             s.Color,
			Faction:           s.Faction,
			FactionRandomized: s.Faction == lobby.Random,
			ColorRandomized:   s.Color == lobby.Random,
			Team:              s.Team,
		}
		n++

		if s.Kind == lobby.SlotHuman {
			if corrupt {
				p.Nick = sanitizeNick(s.Name, logger)
			}
			if s.IsObserver() {
				p.Observer = true
				p.Team = 0
				r.ObserverNums = append(r.ObserverNums, p.Number)
			} else {
				r.join(p.Team, p.Number)
				r.PlayerNums = append(r.PlayerNums, p.Number)
			}
		} else {
			r.ComputerInGame = true
			r.PlayerNums = append(r.PlayerNums, p.Number)
			if s.Faction != lobby.Observer {
				r.join(p.Team, p.Number)
			} else {
				p.Team = 0
			}
		}

		r.Nicks = append(r.Nicks, p.Nick)
		r.Players = append(r.Players, p)
	}
}

func (r *Roster) join(team, num int) {
	for i := range r.Teams {
		if r.Teams[i].Number == team {
			r.Teams[i].Members = append(r.Teams[i].Members, num)
			return
		}
	}
	r.Teams = append(r.Teams, Team{Number: team, Members: []int{num}})
}

// sanitizeNick replaces a nickname that a corrupt header decoded into
// something that no longer maps back to its original bytes.
func sanitizeNick(name string, logger zerolog.Logger) string {
	raw, err := replay.Latin1("nickname", name)
	if err != nil {
		logger.Debug().Err(err).Msg("nickname replaced")
		return "player"
	}
	if !utf8.Valid(raw) {
		return "player"
	}
	return name
}

// foldTeamless gives every member of team 0 a team of their own, using the
// lowest free team numbers.
func (r *Roster) foldTeamless() {
	zero, ok := r.Team(0)
	if !ok {
		return
	}
	teamless := zero.Members
	r.Teams = lo.Filter(r.Teams, func(t Team, _ int) bool { return t.Number != 0 })

	taken := lo.SliceToMap(r.Teams, func(t Team) (int, bool) { return t.Number, true })
	next := 1
	for _, num := range teamless {
		for taken[next] {
			next++
		}
		taken[next] = true
		r.Teams = append(r.Teams, Team{Number: next, Members: []int{num}})
		for i := range r.Players {
			if r.Players[i].Number == num {
				r.Players[i].Team = next
			}
		}
	}
}

// randomize replays the lobby's draws for random factions and colors in
// player order. The stored faction of a fixed pick is two above its table
// index.
func randomize(players []Player, cfg *lobby.Config, table *versions.Table) {
	seed := cfg.Seed()
	g := prng.New(uint32(seed))
	discard := int(((seed % 7) + 7) % 7)

	totalFactions := table.FactionCount()
	if !cfg.Has("SR") && !cfg.Has("SC") {
		totalFactions = 3
	}
	totalColors := table.ColorCount()

	taken := make([]bool, totalColors)
	for _, p := range players {
		if p.Color >= 0 && p.Color < totalColors {
			taken[p.Color] = true
		}
	}

	for i := range players {
		p := &players[i]
		switch {
		case p.Faction == lobby.Random && totalFactions > 0:
			for range discard {
				g.Value(0, 1)
			}
			p.Faction = g.Value(0, 1000) % totalFactions
		case p.Faction > 0:
			p.Faction -= 2
		}

		if p.Color == lobby.Random {
			p.Color = drawColor(g, taken)
		}
	}
}

// drawColor draws until it hits a free color. With every color taken it
// gives up and leaves the color random.
func drawColor(g *prng.Generator, taken []bool) int {
	if !lo.Contains(taken, false) {
		return lobby.Random
	}
	for {
		c := g.Value(0, len(taken)-1)
		if !taken[c] {
			taken[c] = true
			return c
		}
	}
}
