// Package parser is the entry point for turning replay bytes into a report.
package parser

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"genrep/internal/lobby"
	"genrep/internal/outcome"
	"genrep/internal/replay"
	"genrep/internal/scan"
	"genrep/internal/slots"
	"genrep/internal/summary"
	"genrep/internal/versions"
)

var defaultVersions = versions.NewRegistry()

type options struct {
	versions  *versions.Registry
	sourceURL string
	logger    zerolog.Logger
}

// Option configures a single parse.
type Option func(*options)

// WithVersions sets the color and faction tables used for name lookups.
func WithVersions(r *versions.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.versions = r
		}
	}
}

// WithSourceURL records where a replay was downloaded from. Archive URLs
// carry the upload day, which corrects wrong recording clocks in match ids.
func WithSourceURL(url string) Option {
	return func(o *options) {
		o.sourceURL = url
	}
}

// WithLogger sends the debug lines of this parse to l. Parsing is silent
// without it.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Parse decodes a complete replay held in memory. A *replay.FormatError is
// returned for input that is not a replay; every other problem ends up in
// the report's result text.
func Parse(data []byte, opts ...Option) (*summary.Report, error) {
	o := options{versions: defaultVersions, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	rep, err := replay.Decode(data)
	if err != nil {
		return nil, err
	}
	return build(rep, o)
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader, opts ...Option) (*summary.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}
	return Parse(data, opts...)
}

func build(rep *replay.Replay, o options) (*summary.Report, error) {
	h := &rep.Header
	base := o.logger.With().Str("file", h.FileName).Logger()
	logger := base.With().Str("component", "parser").Logger()

	cfg, err := lobby.Parse(h.GameString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse game string: %w", err)
	}

	table := o.versions.Lookup(h.VersionString)
	body := scan.Body(rep.Body)

	roster, err := slots.Resolve(cfg, h, body, table, base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slots: %w", err)
	}
	logger.Debug().
		Int("offset", roster.Offset).
		Int("local", roster.Local).
		Bool("normalEnding", roster.NormalEnding).
		Str("matchType", roster.MatchType()).
		Msg("roster resolved")

	res := outcome.Reconstruct(outcome.Input{
		Body:   body,
		Roster: roster,
		Desync: h.Desync == 1,
		Logger: base,
	})

	report := summary.Build(summary.Input{
		Header:    h,
		Config:    cfg,
		Roster:    roster,
		Table:     table,
		Outcome:   res,
		SourceURL: o.sourceURL,
	})
	logger.Debug().Str("matchId", report.MatchID).Str("result", report.Result).Msg("replay parsed")
	return report, nil
}
