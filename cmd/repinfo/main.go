package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"genrep/internal/collector"
	"genrep/internal/parser"
	"genrep/internal/summary"
	"genrep/internal/versions"
)

func main() {
	asJSON := flag.Bool("json", false, "Print reports as JSON lines")
	rename := flag.Bool("rename", false, "Rename each replay to its suggested name")
	versionsDir := flag.String("versions", os.Getenv("VERSIONS_DIR"), "Directory of extra version tables (JSON)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: repinfo [-json] [-rename] FILE_OR_DIR...")
		flag.PrintDefaults()
	}
	flag.Parse()

	setupLogging()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	reg := versions.NewRegistry()
	if *versionsDir != "" {
		if err := reg.LoadDir(os.DirFS(*versionsDir), "."); err != nil {
			log.Fatal().Err(err).Msg("failed to load version tables")
		}
	}

	var paths []string
	for _, arg := range flag.Args() {
		info, err := os.Stat(arg)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot open input")
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		jobs, err := collector.LocalJobs(arg)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot list directory")
		}
		for _, j := range jobs {
			paths = append(paths, j.Path)
		}
	}

	failed := 0
	for _, path := range paths {
		if err := show(path, reg, *asJSON, *rename); err != nil {
			log.Error().Err(err).Str("file", path).Msg("failed")
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func show(path string, reg *versions.Registry, asJSON, rename bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	report, err := parser.Parse(data, parser.WithVersions(reg), parser.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	if asJSON {
		line, err := json.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	} else {
		printReport(path, len(data), report)
	}

	if rename {
		newPath, err := collector.Rename(path, report)
		if err != nil {
			return err
		}
		if newPath != path {
			log.Info().Str("from", filepath.Base(path)).Str("to", filepath.Base(newPath)).Msg("renamed")
		}
	}
	return nil
}

func printReport(path string, size int, r *summary.Report) {
	fmt.Printf("== %s (%s)\n", filepath.Base(path), humanize.Bytes(uint64(size)))

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range r.Info {
		fmt.Fprintf(tw, "%s:\t%s\n", row.Label, row.Value)
	}
	tw.Flush()
	fmt.Println()

	tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTeam\tName\tFaction\tColor\tPlace\tSurrender\tExit\tIdle")
	for _, p := range r.Players {
		team := "-"
		if p.Team > 0 {
			team = fmt.Sprint(p.Team)
		}
		faction := p.Faction
		if p.RandomFaction {
			faction += " (random)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Number, team, p.Name, faction, p.Color, p.Ordinal, p.Surrender, p.Exit, p.Idle)
	}
	tw.Flush()
	fmt.Println()
}

func setupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
