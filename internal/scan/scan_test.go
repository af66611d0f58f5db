package scan_test

import (
	"reflect"
	"testing"

	"genrep/internal/scan"
	"genrep/internal/scan/scantest"
)

func TestLE(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"01000000", 1},
		{"10270000", 10000},
		{"e803", 1000},
		{"zz", 0},
		{"123", 0},
	}
	for _, tt := range tests {
		if got := scan.LE(tt.in); got != tt.want {
			t.Errorf("LE(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := scan.LE32(1095); got != "47040000" {
		t.Errorf("LE32(1095) = %q", got)
	}
}

func TestFrameAndCRC(t *testing.T) {
	var s scantest.Stream
	s.Order(100, 1049, 2).CRC(4500, 3, 0xdeadbeef)
	b := s.Body()

	crcAt := b.Index(scan.LogicCRC(3))
	if got := b.Frame(crcAt); got != 4500 {
		t.Errorf("Frame = %d, want 4500", got)
	}
	if got := b.CRC(crcAt - 8); got != 0xdeadbeef {
		t.Errorf("CRC = %#x, want 0xdeadbeef", got)
	}
	if got := b.Frame(-1); got != 0 {
		t.Errorf("Frame(-1) = %d, want 0", got)
	}
	if got := b.Frame(3); got != 0 {
		t.Errorf("Frame(3) = %d, want 0", got)
	}
}

func TestIndexQuits(t *testing.T) {
	var s scantest.Stream
	s.Order(10, 1049, 2).
		SelfDestruct(900, 3, 1).
		Broadcast(1000, 7, 2, 3).
		SelfDestruct(1200, 2, 1).
		SelfDestruct(1500, 3, 1)
	b := s.Body()

	q := scan.IndexQuits(b)
	if len(q[3]) != 2 || len(q[2]) != 1 {
		t.Fatalf("IndexQuits = %v", q)
	}
	if q[3][0] >= q[3][1] {
		t.Error("quit offsets must be ascending")
	}
	frames := []int{b.Frame(q[3][0]), b.Frame(q[3][1]), b.Frame(q[2][0])}
	if !reflect.DeepEqual(frames, []int{900, 1500, 1200}) {
		t.Errorf("quit frames = %v", frames)
	}

	clone := q.Clone()
	clone[3][0] = -5
	if q[3][0] == -5 {
		t.Error("Clone must not share slices")
	}
}

func TestLastCRC(t *testing.T) {
	var s scantest.Stream
	s.Broadcast(300, 1, 2, 3, 4).
		SelfDestruct(450, 4, 1).
		Broadcast(600, 0xabcdef01, 2, 3).
		Order(650, 1049, 2)
	b := s.Body()

	c := scan.LastCRC(b, 2)
	if !c.Found() {
		t.Fatal("expected a CRC check for player 2")
	}
	if c.Frame() != 600 {
		t.Errorf("Frame() = %d, want 600", c.Frame())
	}
	if c.CRCHex != scan.LE32(0xabcdef01) {
		t.Errorf("CRCHex = %q", c.CRCHex)
	}
	if !c.Has(2) || !c.Has(3) || c.Has(4) {
		t.Errorf("Players = %v", c.Players)
	}
	if got := b.CRC(c.Players[3]); got != 0xabcdef01 {
		t.Errorf("CRC of player 3 = %#x", got)
	}

	if scan.LastCRC(b, 9).Found() {
		t.Error("player 9 never sent a CRC")
	}

	prev := scan.PreviousCRC(b, 2, c.Index)
	if b.Frame(prev) != 300 {
		t.Errorf("PreviousCRC frame = %d, want 300", b.Frame(prev))
	}
	if got := scan.CRCFrames(b, 3); !reflect.DeepEqual(got, []string{scan.LE32(300), scan.LE32(600)}) {
		t.Errorf("CRCFrames = %v", got)
	}
}

func TestFirstCRCPlayers(t *testing.T) {
	var s scantest.Stream
	s.Order(5, 1049, 5).Broadcast(150, 9, 5, 3, 4).Broadcast(300, 9, 3, 4)

	got := scan.FirstCRCPlayers(s.Body())
	if !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("FirstCRCPlayers = %v, want [3 4 5]", got)
	}

	var single scantest.Stream
	single.Broadcast(150, 9, 2)
	if got := scan.FirstCRCPlayers(single.Body()); got != nil {
		t.Errorf("single player broadcast = %v, want nil", got)
	}

	if got := scan.FirstCRCPlayers(scan.Body("abcdef")); got != nil {
		t.Errorf("no CRC = %v, want nil", got)
	}
}

func TestClearReplayPlayer(t *testing.T) {
	var s scantest.Stream
	s.Broadcast(300, 1, 2, 3).ClearReplay(320, 3)
	b := s.Body()

	p, ok := scan.ClearReplayPlayer(b)
	if !ok || p != 3 {
		t.Errorf("ClearReplayPlayer = %d, %v", p, ok)
	}
	if scan.LE(scan.ClearReplayFrameHex(b)) != 320 {
		t.Errorf("ClearReplayFrameHex = %q", scan.ClearReplayFrameHex(b))
	}

	var crashed scantest.Stream
	crashed.Broadcast(300, 1, 2, 3).Order(310, 1049, 2)
	if _, ok := scan.ClearReplayPlayer(crashed.Body()); ok {
		t.Error("stream without clear replay reported one")
	}
}

func TestLastOrderBefore(t *testing.T) {
	var s scantest.Stream
	s.Order(100, 1049, 2).
		Order(200, 1060, 2).
		Broadcast(300, 1, 2).
		Order(400, 1003, 2).
		Order(900, 1049, 2)
	b := s.Body()

	tests := []struct {
		name     string
		player   int
		maxFrame int
		want     int
		wantOK   bool
	}{
		{name: "newest order", player: 2, maxFrame: 5000, want: 900, wantOK: true},
		{name: "skips housekeeping and later orders", player: 2, maxFrame: 899, want: 200, wantOK: true},
		{name: "bound is inclusive", player: 2, maxFrame: 100, want: 100, wantOK: true},
		{name: "nothing before bound", player: 2, maxFrame: 99},
		{name: "silent player", player: 6, maxFrame: 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, ok := scan.LastOrderBefore(b, tt.player, tt.maxFrame)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && b.Frame(off) != tt.want {
				t.Errorf("order frame = %d, want %d", b.Frame(off), tt.want)
			}
		})
	}
}

func TestLastValidMessageFrame(t *testing.T) {
	var s scantest.Stream
	s.Order(100, 1049, 2).Order(2500, 1060, 3).Raw("ffff")
	got, ok := scan.LastValidMessageFrame(s.Body(), 10000)
	if !ok || got != 2500 {
		t.Errorf("LastValidMessageFrame = %d, %v; want 2500", got, ok)
	}
}

func TestOrdersFromAndLastSender(t *testing.T) {
	var s scantest.Stream
	s.Order(100, 1049, 2).Broadcast(200, 1, 2, 3).Order(210, 1060, 3).Order(220, 1060, 9)
	b := s.Body()

	msgs := scan.OrdersFrom(b, b.Index(scan.LE32(200)+"47040000"))
	sender, ok := scan.LastSender(msgs, []int{2, 3})
	if !ok || sender != 3 {
		t.Errorf("LastSender = %d, %v; want 3", sender, ok)
	}

	// with no known sender the scan runs to the oldest message
	sender, ok = scan.LastSender(msgs, []int{4})
	if !ok || sender != 3 {
		t.Errorf("LastSender without known players = %d, %v; want 3", sender, ok)
	}
}

func TestSelectedObjectsAndTargetOrders(t *testing.T) {
	var s scantest.Stream
	s.SelectGroup(100, 2, 77).SelectGroup(110, 2, 77).SelectGroup(120, 2, 88).
		AreaAttack(500, 2, 77).
		AreaAttack(900, 2, 88).
		AreaAttack(1000, 2, 77)
	b := s.Body()

	objs := scan.SelectedObjects(b, 2, 2)
	if !reflect.DeepEqual(objs, []int{77}) {
		t.Fatalf("SelectedObjects(min 2) = %v", objs)
	}
	if got := scan.SelectedObjects(b, 2, 1); !reflect.DeepEqual(got, []int{77, 88}) {
		t.Errorf("SelectedObjects(min 1) = %v", got)
	}

	offs := scan.TargetOrders(b, 0, len(b), objs)
	if len(offs) != 2 {
		t.Fatalf("TargetOrders = %v", offs)
	}
	frames := []int{b.Frame(offs[0]), b.Frame(offs[1])}
	if !reflect.DeepEqual(frames, []int{1000, 500}) {
		t.Errorf("target order frames = %v, want [1000 500]", frames)
	}
}
