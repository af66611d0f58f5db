package outcome

import (
	"strconv"

	"github.com/samber/lo"

	"genrep/internal/scan"
)

// endSequence holds the message runs a scripted ending is assembled from.
// Each run repeats one message for every player still in the game.
type endSequence struct {
	destroy string // destroy-selected-group at the local player's last destroy frame
	crc     string // the final CRC broadcast
	prevCRC string // the CRC broadcast before it
	closing string // the clear replay message
}

func (m *match) endSequence(s *state) endSequence {
	var e endSequence
	b, local := m.body, m.local
	destroyFrame := scan.LastDestroyFrameHex(b, local)
	prev := scan.PreviousCRC(b, local, m.crc.Index)

	for _, p := range m.roster.Players {
		f := s.frame(p.Number)
		if f.Exit != nil || f.Ambiguous != nil {
			continue
		}
		e.destroy += destroyFrame + scan.DestroyGroup(p.Number)
		e.crc += m.crc.FrameHex + scan.LogicCRC(p.Number) + m.crc.CRCHex + "00"
		if prev >= 0 {
			e.prevCRC += b.FrameHex(prev) + scan.LogicCRC(p.Number) + b.CRCHexAt(prev) + "00"
		}
	}
	e.closing = scan.ClearReplayFrameHex(b) + scan.ClearReplay(local)
	return e
}

// destroyThenCRC: every remaining player destroys their selection, then one
// CRC broadcast, then the replay closes.
func destroyThenCRC(b scan.Body, e endSequence) bool {
	return b.Contains(e.destroy + e.crc + e.closing)
}

// destroyThenDoubleCRC: like destroyThenCRC with two CRC broadcasts.
func destroyThenDoubleCRC(b scan.Body, e endSequence) bool {
	return b.Contains(e.destroy + e.prevCRC + e.crc + e.closing)
}

// crcThenDestroy: the CRC broadcast comes before the destroy orders.
func crcThenDestroy(b scan.Body, e endSequence) bool {
	return b.Contains(e.crc + e.destroy + e.closing)
}

const (
	ending1 = "Unknown 1"
	ending2 = "Unknown 2"
	ending3 = "Unknown 3"
)

// checkEnding handles matches without an explicit winner. A scripted ending
// names the winner through the last player to give an order; anything else
// is classified by how the local player left.
func (m *match) checkEnding(in *state) *state {
	s := in.clone()
	s.winText, s.found = TextUnknown, false

	if !m.crc.Found() {
		s.text = TextStartDisconnect
		return s
	}

	e := m.endSequence(s)
	switch {
	case destroyThenCRC(m.body, e):
		s.text = ending1
	case destroyThenDoubleCRC(m.body, e):
		s.text = ending2
	case crcThenDestroy(m.body, e):
		s.text = ending3
	default:
		m.classifyQuitMenu(s)
		return s
	}

	m.lastSenderWins(s)
	return s
}

// lastSenderWins credits the team of the last player who gave an order
// around the final CRC checks, provided exactly two teams were left.
func (m *match) lastSenderWins(s *state) {
	checks := scan.CRCFrames(m.body, m.local)
	lastCheck := "0"
	switch {
	case len(checks) < 2:
	case s.text != ending3 && len(checks) >= 3:
		lastCheck = checks[len(checks)-3]
	default:
		lastCheck = checks[len(checks)-2]
	}
	msgs := scan.OrdersFrom(m.body, m.body.LastIndex(lastCheck+"470400000"))

	r := m.roster
	var remainingTeams []int
	for _, n := range r.PlayerNums {
		if !s.quits.Has(n) {
			remainingTeams = append(remainingTeams, r.TeamOf(n))
		}
	}
	remainingTeams = lo.Uniq(remainingTeams)

	sender, ok := scan.LastSender(msgs, r.PlayerNums)
	if !ok || !r.IsPlayer(sender) || len(remainingTeams) != 2 {
		return
	}
	s.winner = r.TeamOf(sender)

	lastFrame := m.crc.Frame()
	backdate := 240
	if s.text == ending2 {
		backdate = 300
	}
	for _, p := range r.Players {
		if s.quits.Has(p.Number) || p.Observer || p.Team == s.winner {
			continue
		}
		if lastFrame >= 500 {
			s.frame(p.Number).Idle = intp(lastFrame - backdate)
			s.quits[p.Number] = []int{m.crc.Index}
			s.setTeamQuit(p.Number, m.crc.Index)
		}
	}

	winners, _ := s.team(s.winner)
	switch {
	case r.IsObserver(m.local):
		s.text = teamWon(s.winner)
	case winners.has(m.local):
		s.text = TextWin
	default:
		s.text = TextLoss
	}
	s.winText = strconv.Itoa(s.winner)
	s.found = true
}

// classifyQuitMenu describes a match that ended without a recognizable
// ending from the local player's perspective.
func (m *match) classifyQuitMenu(s *state) {
	r := m.roster
	s.text = TextQuitMenu
	switch {
	case r.IsPlayer(m.local):
		own, _ := s.team(r.TeamOf(m.local))
		if s.quits.Has(m.local) && !own.hasActive() && len(s.teams) > 2 {
			s.text = TextLoss
		} else if s.frame(m.local).Exit != nil {
			s.text = TextNotEnoughData
		}
		if !r.NormalEnding {
			s.text = TextAborted
		}
	case r.IsObserver(m.local) && s.quits.Has(m.local):
		s.text = TextObserverQuit
	}
}
