package outcome

import "genrep/internal/scan"

// Idle detection only runs on matches longer than three minutes.
const minIdleFrames = 5400

// idlePass holds the frame gaps of one idle detection pass.
type idlePass struct {
	// gap is the silence before the final frame that marks a player idle
	// when a winner is already known. gapNoWinner applies otherwise, to
	// players with no quit at all.
	gap         int
	gapNoWinner int
	// exitGap and ambiguousGap are the silence required before a recorded
	// exit or ambiguous quit.
	exitGap      int
	ambiguousGap int
	// clicks is how often a player must have selected an object for it to
	// count as theirs when looking for the kick.
	clicks int
}

var (
	firstPass  = idlePass{gap: 900, gapNoWinner: 1800, exitGap: 1200, ambiguousGap: 1800, clicks: 5}
	reviewPass = idlePass{gap: 450, gapNoWinner: 1800, exitGap: 450, ambiguousGap: 1800, clicks: 1}
)

// refineIdle marks players that went silent long before the end as idle or
// kicked and synthesizes a quit for them. When it marks anyone, the winner
// is determined once more; it never loops.
func (m *match) refineIdle(in *state, pass idlePass) *state {
	s := in.clone()
	if s.finalFrame < minIdleFrames {
		return s
	}

	marked := false
	for _, p := range m.roster.Players {
		n := p.Number
		f := s.frame(n)
		if p.Observer || (f.Surrender != nil && s.quits.Has(n)) {
			continue
		}
		if _, seen := s.idle[n]; seen {
			continue
		}

		off, ok := scan.LastOrderBefore(m.body, n, s.finalFrame)
		if !ok {
			continue
		}
		at := m.frame(off)
		if s.finalFrame-at < pass.gap {
			continue
		}

		gap := pass.gapNoWinner
		if s.found {
			gap = pass.gap
		}
		switch {
		case f.Exit != nil && *f.Exit-at >= pass.exitGap,
			f.Ambiguous != nil && *f.Ambiguous-at >= pass.ambiguousGap:
			s.quits[n] = append([]int{off}, s.quits[n]...)
		case !s.quits.Has(n) && s.finalFrame-at >= gap:
			s.quits[n] = []int{off}
		default:
			continue
		}

		f.Idle = intp(at)
		s.idle[n] = idleMark{index: off}
		marked = true
		m.log.Debug().Int("player", n).Int("frame", at).Msg("idle player")
		m.pinKick(s, n, pass.clicks)
	}

	if !marked {
		return s
	}

	for _, p := range m.roster.Players {
		f := s.frame(p.Number)
		if f.Idle == nil {
			continue
		}
		if mark, ok := s.idle[p.Number]; ok && mark.frame != nil {
			f.Idle = intp(*mark.frame)
		}
		if f.Ambiguous != nil {
			f.Exit, f.Ambiguous = f.Ambiguous, nil
		}
	}
	s.syncTeamQuits()
	s.found, s.winner = s.findWinner()

	if s.found && len(s.teams) > 1 {
		_, _, victoryIdx, _ := s.lastLoserQuit()
		winners, _ := s.team(s.winner)
		for _, w := range winners.members {
			f := s.frame(w.player)
			if w.quit != active && f.Ambiguous != nil && *f.Ambiguous > m.frame(victoryIdx) {
				f.Exit, f.Ambiguous = f.Ambiguous, nil
			}
		}
	}
	return s
}

// targetedOrder picks the order that best dates a kick from up to two
// candidates, newest first. A newest order far after the older one is
// treated as unrelated.
func (m *match) targetedOrder(found []int) int {
	if len(found) == 2 && m.frame(found[0])-m.frame(found[1]) > 4500 {
		return found[1]
	}
	return found[0]
}

// pinKick moves p's idle mark to the last order another player aimed at one
// of p's objects, which is when the kick was started. A mark close to the
// end of the match that no such order explains is dropped again.
func (m *match) pinKick(s *state, p, clicks int) {
	objects := scan.SelectedObjects(m.body, p, clicks)
	f := s.frame(p)
	mark := s.idle[p]

	if found := scan.TargetOrders(m.body, mark.index, len(m.body), objects); len(found) > 0 {
		idx := m.targetedOrder(found)
		qs := s.quits[p]
		quitOnly := f.Surrender == nil && (f.Exit != nil || f.Ambiguous != nil)

		apply := false
		switch {
		case len(qs) == 2 && quitOnly:
			apply = idx < qs[1]
		case len(qs) == 1 && quitOnly:
			apply = idx < qs[0]
		case f.Surrender == nil && f.Exit == nil && f.Ambiguous == nil:
			apply = true
		}
		if apply {
			mark = idleMark{index: idx, frame: intp(m.frame(idx))}
			s.idle[p] = mark
			s.quits[p][0] = idx
		}
	}

	if m.crc.Frame()-m.frame(mark.index) <= 600 && !m.isKick(mark.index, objects) && clicks < 5 {
		if len(s.quits[p]) == 1 {
			delete(s.quits, p)
		} else {
			s.quits[p] = s.quits[p][1:]
		}
		f.Idle = nil
		delete(s.idle, p)
	}
}

// isKick reports whether an order aimed at the player's objects shortly
// before the idle point explains it.
func (m *match) isKick(index int, objects []int) bool {
	found := scan.TargetOrders(m.body, 0, index, objects)
	if len(found) == 0 {
		return false
	}
	return m.frame(index)-m.frame(m.targetedOrder(found)) <= 300
}
