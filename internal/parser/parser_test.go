package parser

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"genrep/internal/outcome"
	"genrep/internal/replay"
	"genrep/internal/scan/scantest"
	"genrep/internal/versions"
)

func TestParse_Duel(t *testing.T) {
	rep, err := Parse(scantest.DuelFile())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rep.Result != outcome.TextWin || rep.WinningTeam != "1" {
		t.Errorf("result = %q / %q", rep.Result, rep.WinningTeam)
	}
	if rep.MatchType != "1v1" || rep.MapName != "tournament desert" {
		t.Errorf("match = %q on %q", rep.MatchType, rep.MapName)
	}
	if rep.MatchID != "aaf4e25ed530c4d726fcc2861400c475" {
		t.Errorf("MatchID = %s", rep.MatchID)
	}
	if !rep.ExeCheck || !rep.IniCheck {
		t.Error("1.04 checksums not recognized")
	}
}

func TestParse_NotAReplay(t *testing.T) {
	_, err := Parse([]byte("RIFF0000WAVE"))
	var fe *replay.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestParse_EmptyLobbyIsFormatError(t *testing.T) {
	h := scantest.Header("M=maps/x;MC=1;SD=1;S=X:X:;")
	_, err := Parse(scantest.File(h, scantest.DuelWin()))
	var fe *replay.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected wrapped FormatError, got %v", err)
	}
}

func TestParseReader_SourceURL(t *testing.T) {
	url := "http://www.gentool.net/data/zh/2024_03_March/20_Wednesday/Alpha/12-30-00_1v1.rep"
	rep, err := ParseReader(bytes.NewReader(scantest.DuelFile()), WithSourceURL(url))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Date != "2024-03-20" || rep.Start != "2024-03-20 12:30:00" {
		t.Errorf("dates = %q %q", rep.Date, rep.Start)
	}
	if rep.MatchID == "aaf4e25ed530c4d726fcc2861400c475" {
		t.Error("upload date did not change the match id")
	}
}

func TestParse_WithVersions(t *testing.T) {
	reg := versions.NewRegistry()
	reg.Register(&versions.Table{
		Version: "Version 1.04",
		Colors:  map[int]versions.Color{1: {Name: "Crimson", Hex: "#990000"}, 2: {Name: "Navy", Hex: "#000080"}},
	})

	rep, err := Parse(scantest.DuelFile(), WithVersions(reg))
	if err != nil {
		t.Fatal(err)
	}
	if rep.LocalColor != "Crimson" || rep.Players[1].Color != "Navy" {
		t.Errorf("colors = %q %q", rep.LocalColor, rep.Players[1].Color)
	}
}

func TestParse_WithLogger(t *testing.T) {
	var global bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&global)
	t.Cleanup(func() { log.Logger = prev })

	if _, err := Parse(scantest.DuelFile()); err != nil {
		t.Fatal(err)
	}
	if global.Len() != 0 {
		t.Errorf("parse without a logger wrote %q", global.String())
	}

	var buf bytes.Buffer
	if _, err := Parse(scantest.DuelFile(), WithLogger(zerolog.New(&buf))); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"component":"parser"`, `"component":"slots"`, `"component":"outcome"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output lacks %s:\n%s", want, buf.String())
		}
	}
	if global.Len() != 0 {
		t.Error("debug lines leaked to the global logger")
	}
}

func TestParse_Concurrent(t *testing.T) {
	data := scantest.DuelFile()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := Parse(data)
			if err == nil && rep.Result != outcome.TextWin {
				err = errors.New("unexpected result " + rep.Result)
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
