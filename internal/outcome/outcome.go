// Package outcome reconstructs who won a match from the command stream of a
// replay. The stream never says so directly; the result is inferred from
// self destruct orders, logic CRC broadcasts and the messages that close a
// replay.
package outcome

import (
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"genrep/internal/scan"
	"genrep/internal/slots"
)

// Result texts.
const (
	TextWin             = "Win"
	TextLoss            = "Loss"
	TextNoOpponents     = "No Result (No opponents)"
	TextComputer        = "No Result (No data from computer player)"
	TextDesync          = "No Result (Desync)"
	TextVoteKick        = "Ended in Disconnect Menu with a player vote/countdown kick"
	TextQuitMenu        = "Ended with Quit Game in Disconnect Menu"
	TextNotEnoughData   = "Unk (Not enough data)"
	TextAborted         = "Disconnect (Game aborted or crashed)"
	TextObserverQuit    = "Unk (Not enough data (Obs quit early or before end patterns))"
	TextStartDisconnect = "Disconnect at start of game"
	TextUnknown         = "Unknown"

	reviewSuffix      = " (Check Result Manually)"
	reviewSuffixLoser = " (Check Result Manually) (Correct if loser exited else incorrect)"
)

// Input is everything Reconstruct reads.
type Input struct {
	Body   scan.Body
	Roster *slots.Roster
	Desync bool
	// Logger receives debug lines. The zero value discards them.
	Logger zerolog.Logger
}

// Result is the reconstructed outcome.
type Result struct {
	Text            string `json:"result"`
	WinningTeamText string `json:"winningTeam"`
	FoundWinner     bool   `json:"foundWinner"`
	// WinningTeam is nil unless FoundWinner.
	WinningTeam *int `json:"winningTeamNumber,omitempty"`
	// Placement ranks teams when a winner was found.
	Placement map[int]int `json:"placement,omitempty"`
	// EliminationRanks ranks the knocked out teams of a game with more than
	// two teams that ended without a winner.
	EliminationRanks map[int]int `json:"eliminationRanks,omitempty"`

	Frames   map[int]Frames    `json:"frames"`
	LastCRC  scan.CRCBroadcast `json:"-"`
	EndFrame int               `json:"endFrame"`
}

// PlayerPlacement returns the rank of a team from whichever ranking exists.
func (r *Result) PlayerPlacement(team int) (int, bool) {
	if rank, ok := r.Placement[team]; ok {
		return rank, true
	}
	rank, ok := r.EliminationRanks[team]
	return rank, ok
}

// match carries the immutable inputs shared by every step.
type match struct {
	body   scan.Body
	roster *slots.Roster
	local  int
	crc    scan.CRCBroadcast
	log    zerolog.Logger
}

func (m *match) frame(off int) int { return m.body.Frame(off) }

// Reconstruct runs the full inference.
func Reconstruct(in Input) Result {
	m := &match{
		body:   in.Body,
		roster: in.Roster,
		local:  in.Roster.Local,
		crc:    scan.LastCRC(in.Body, in.Roster.Local),
		log:    in.Logger.With().Str("component", "outcome").Logger(),
	}

	s := newState(in.Roster, scan.IndexQuits(in.Body))
	s.syncTeamQuits()
	s.found, s.winner = s.findWinner()

	s = m.classify(s)
	s.finalFrame = m.finalMessageFrame(s)
	s = m.refineIdle(s, firstPass)

	switch {
	case len(s.teams) == 1:
		s.found = false
		s.text, s.winText = TextNoOpponents, TextNoOpponents
	case in.Roster.ComputerInGame:
		s.found = false
		s.text, s.winText = TextComputer, TextUnknown
	case in.Desync && s.found:
		s.winText = strconv.Itoa(s.winner)
	case in.Desync:
		s.text, s.winText = TextDesync, TextDesync
	}

	if s.found {
		s = m.confirmWinner(s)
	}
	if s.text == "" {
		s = m.checkEnding(s)
	}
	s = m.rank(s)

	res := m.result(s)
	m.log.Debug().
		Str("result", res.Text).Bool("found", res.FoundWinner).Str("winner", res.WinningTeamText).
		Msg("outcome reconstructed")
	return res
}

func (m *match) result(s *state) Result {
	res := Result{
		Text:            s.text,
		WinningTeamText: s.winText,
		FoundWinner:     s.found,
		Frames:          make(map[int]Frames, len(s.frames)),
		LastCRC:         m.crc,
		EndFrame:        s.endFrame,
	}
	for p, f := range s.frames {
		res.Frames[p] = *f.clone()
	}
	if s.found {
		res.WinningTeam = intp(s.winner)
		res.Placement = s.placement
	} else {
		res.EliminationRanks = s.eliminated
	}
	return res
}

// classify turns each player's quit offsets into surrender, exit or
// ambiguous events.
func (m *match) classify(in *state) *state {
	s := in.clone()
	b, local, crc := m.body, m.local, m.crc
	localQuits := s.quits[local]

	victoryIdx := -1
	if s.found && len(s.teams) > 1 {
		_, _, victoryIdx, _ = s.lastLoserQuit()
	}

	for _, p := range m.roster.Players {
		n := p.Number
		if !crc.Has(n) {
			continue
		}
		qs := s.quits[n]
		stillSending := (len(qs) == 0 && len(localQuits) == 0) ||
			(len(qs) == 1 && crc.Index > qs[0] && (len(localQuits) == 0 || crc.Index > localQuits[0])) ||
			(len(qs) == 0 && len(localQuits) > 0 && crc.Index > localQuits[0])
		if stillSending {
			s.frame(n).LastCRC = intp(b.CRC(crc.Players[n]))
		}
	}

	winners, _ := s.team(s.winner)
	for _, p := range m.roster.Players {
		n := p.Number
		qs := s.quits[n]
		if len(qs) == 0 {
			continue
		}
		f := s.frame(n)

		if len(qs) > 1 {
			f.Surrender = intp(m.frame(qs[0]))
			f.Exit = intp(m.frame(qs[1]))
			continue
		}

		at := m.frame(qs[0])
		switch {
		case p.Observer:
			f.Exit = intp(at)

		// surrendered players keep sending CRC checks
		case crc.Has(n) && crc.Index > qs[0]:
			if at == m.frame(crc.Index) {
				f.Ambiguous = intp(at)
			} else {
				f.Surrender = intp(at)
			}

		case n != local && len(localQuits) > 0:
			switch {
			case s.found && len(s.teams) > 1 && winners.has(n) && qs[0] > victoryIdx:
				f.Exit = intp(at)
			case s.frame(local).LastCRC == nil:
				f.Ambiguous, f.Surrender, f.Exit = m.checkAfterQuit(n, qs[0], at)
			case f.LastCRC == nil:
				f.Exit = intp(at)
			default:
				f.Surrender = intp(at)
			}

		default:
			f.Exit = intp(at)
		}
	}
	return s
}

// checkAfterQuit looks at the local player's first CRC check after quit:
// if p still took part in that broadcast it only surrendered.
func (m *match) checkAfterQuit(p, quit, at int) (ambiguous, surrender, exit *int) {
	i := m.body.IndexFrom(scan.LogicCRC(m.local), quit)
	if i < 0 {
		return intp(at), nil, nil
	}
	if m.body.IndexFrom(m.body.FrameHex(i)+scan.LogicCRC(p), quit) >= 0 {
		return nil, intp(at), nil
	}
	return nil, nil, intp(at)
}

// finalMessageFrame is the last frame the local player was known to be in
// the game.
func (m *match) finalMessageFrame(s *state) int {
	final := s.endFrame
	lf := s.frame(m.local)
	qs := s.quits[m.local]
	switch {
	case len(qs) == 1 && lf.Surrender == nil:
		if lf.Exit != nil {
			final = *lf.Exit
		} else if lf.Ambiguous != nil {
			final = *lf.Ambiguous
		}
	case len(qs) > 1:
		if lf.Exit != nil {
			final = *lf.Exit
		}
	case m.crc.Found():
		final = m.crc.Frame()
	}
	return final
}

// confirmWinner validates an explicit winner and turns it into a result
// text from the local player's point of view.
func (m *match) confirmWinner(in *state) *state {
	s := in.clone()
	_, loser, endIdx, _ := s.lastLoserQuit()
	idleIdx := s.idleIndexes()
	m.checkIncorrectWinner(s)

	// a zero self destruct argument marks a vote or countdown kick, which
	// each side would otherwise record as their own win
	if !lo.Contains(idleIdx, endIdx) && m.body.ByteAt(endIdx+22) == 0 {
		s.text, s.winText, s.found = TextVoteKick, TextUnknown, false
	}
	if !s.found {
		return s
	}

	s.winText = strconv.Itoa(s.winner)
	if !lo.Contains(idleIdx, endIdx) && m.needsReview(s, loser, endIdx) {
		lastFrame := m.crc.Frame()
		if lastFrame >= 1000 && lastFrame-m.frame(endIdx) <= 200 {
			s.review = reviewSuffix
			s = m.refineIdle(s, reviewPass)
			m.checkIncorrectWinner(s)
			s.winText = strconv.Itoa(s.winner)
		}
	}

	if s.found {
		winners, _ := s.team(s.winner)
		switch {
		case m.roster.IsPlayer(m.local) && winners.has(m.local):
			s.text = TextWin + s.review
		case m.roster.IsPlayer(m.local):
			s.text = TextLoss + s.review
		case m.roster.IsObserver(m.local):
			s.text = teamWon(s.winner) + s.review
		}
	}
	return s
}

// needsReview flags a result that may be wrong: the local player stayed to
// the end, the last loser left without surrendering, the replay closes
// right after the final CRC check and exactly one winner was still around
// when the loser left.
func (m *match) needsReview(s *state, loser, endIdx int) bool {
	if s.quits.Has(m.local) || !m.crc.Found() || !m.roster.NormalEnding {
		return false
	}
	if s.frame(loser).Surrender != nil {
		return false
	}
	closing := "0000000200010201" + m.crc.CRCHex + "00" + scan.ClearReplayFrameHex(m.body) + scan.ClearReplay(m.local)
	if !m.body.Contains(closing) {
		return false
	}
	winners, _ := s.team(s.winner)
	stayed := lo.CountBy(winners.members, func(w member) bool { return w.quit == active || w.quit > endIdx })
	return stayed == 1
}

// checkIncorrectWinner swaps the winner when the last loser was only idle
// and a winner surrendered after that point.
func (m *match) checkIncorrectWinner(s *state) {
	loserTeam, loser, endIdx, _ := s.lastLoserQuit()
	_, loserIdle := s.idle[loser]
	if s.review != "" {
		if loserIdle {
			s.review = reviewSuffix
		} else {
			s.review = reviewSuffixLoser
		}
	}

	if s.frame(loser).Surrender != nil {
		s.found = true
		return
	}
	winners, _ := s.team(s.winner)
	for _, w := range winners.members {
		f := s.frame(w.player)
		if w.quit > endIdx && f.Surrender != nil && m.frame(w.quit) == *f.Surrender && loserIdle {
			s.winner, s.found = loserTeam, true
			if f.Exit != nil {
				s.winText = strconv.Itoa(loserTeam)
			} else {
				s.winText = TextUnknown
			}
			return
		}
	}
}

// rank computes placements. A team knocked out later places better.
func (m *match) rank(in *state) *state {
	s := in.clone()
	standings := func(ts []team) []int {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].lastQuit() > ts[j].lastQuit() })
		return lo.Map(ts, func(t team, _ int) int { return t.number })
	}

	switch {
	case s.found:
		if _, _, endIdx, ok := s.lastLoserQuit(); ok {
			s.endFrame = m.frame(endIdx)
		}
		others := lo.Filter(s.teams, func(t team, _ int) bool { return t.number != s.winner })
		s.placement = map[int]int{s.winner: 1}
		for i, t := range standings(others) {
			s.placement[t] = i + 2
		}

	case len(s.teams) > 2 && !m.roster.ComputerInGame:
		out := lo.Filter(s.teams, func(t team, _ int) bool { return !t.hasActive() })
		if len(out) == 0 {
			break
		}
		first := len(s.teams) - len(out) + 1
		s.eliminated = make(map[int]int, len(out))
		for i, t := range standings(out) {
			s.eliminated[t] = first + i
		}
	}
	return s
}

func teamWon(team int) string {
	return "Team " + strconv.Itoa(team) + " won"
}
