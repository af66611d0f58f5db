package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"genrep/internal/summary"
)

const (
	// Rotation triggers
	MaxReportsPerFile = 1000
	MaxFileAge        = 1 * time.Hour
)

// FileRotator handles writing reports to rotating JSONL files
type FileRotator struct {
	mu sync.Mutex

	// Directories
	hotDir  string // Active writes
	warmDir string // Closed files awaiting export
	coldDir string // Compressed archives

	// Current file state
	currentFile   *os.File
	currentWriter *bufio.Writer
	currentPath   string
	reportCount   int
	fileOpenedAt  time.Time

	maxReports int
	maxAge     time.Duration
}

// NewFileRotator creates a new rotator with the given base directory
func NewFileRotator(baseDir string) (*FileRotator, error) {
	hotDir := filepath.Join(baseDir, "hot")
	warmDir := filepath.Join(baseDir, "warm")
	coldDir := filepath.Join(baseDir, "cold")

	for _, dir := range []string{hotDir, warmDir, coldDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	r := &FileRotator{
		hotDir:     hotDir,
		warmDir:    warmDir,
		coldDir:    coldDir,
		maxReports: MaxReportsPerFile,
		maxAge:     MaxFileAge,
	}

	if err := r.rotate(); err != nil {
		return nil, err
	}

	return r, nil
}

// SetColdDir allows setting a different cold storage path (e.g., HDD)
func (r *FileRotator) SetColdDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create cold directory: %w", err)
	}
	r.mu.Lock()
	r.coldDir = path
	r.mu.Unlock()
	return nil
}

// Name identifies the rotator in collector logs.
func (r *FileRotator) Name() string { return "jsonl" }

// Save writes one row per player of the report and counts it toward
// rotation.
func (r *FileRotator) Save(_ context.Context, report *summary.Report) error {
	for _, row := range RowsFromReport(report) {
		if err := r.WriteLine(row); err != nil {
			return err
		}
	}
	return r.ReportComplete()
}

// WriteLine writes a record to the current JSONL file
func (r *FileRotator) WriteLine(record any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := r.currentWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := r.currentWriter.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// ReportComplete signals that every row of a report has been written.
// This increments the report counter and triggers rotation if needed
func (r *FileRotator) ReportComplete() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reportCount++

	// Flush after each report
	if err := r.currentWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if r.shouldRotate() {
		if err := r.rotate(); err != nil {
			return err
		}
	}

	return nil
}

// shouldRotate checks if we need to rotate to a new file
func (r *FileRotator) shouldRotate() bool {
	if r.currentFile == nil {
		return true
	}
	if r.reportCount >= r.maxReports {
		return true
	}
	return time.Since(r.fileOpenedAt) >= r.maxAge
}

// rotate closes current file and opens a new one
func (r *FileRotator) rotate() error {
	if r.currentFile != nil {
		if err := r.currentWriter.Flush(); err != nil {
			return fmt.Errorf("failed to flush before rotation: %w", err)
		}
		if err := r.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close file: %w", err)
		}

		warmPath := filepath.Join(r.warmDir, filepath.Base(r.currentPath))
		if err := os.Rename(r.currentPath, warmPath); err != nil {
			return fmt.Errorf("failed to move to warm storage: %w", err)
		}
		log.Info().Str("component", "rotator").
			Str("file", filepath.Base(r.currentPath)).Int("reports", r.reportCount).
			Msg("moved to warm storage")
	}

	// Nanoseconds keep names unique when rotating more than once a second
	now := time.Now()
	filename := fmt.Sprintf("reports_%s_%09d.jsonl", now.Format("2006-01-02_15-04-05"), now.Nanosecond())
	r.currentPath = filepath.Join(r.hotDir, filename)

	file, err := os.Create(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	r.currentFile = file
	r.currentWriter = bufio.NewWriterSize(file, 64*1024)
	r.reportCount = 0
	r.fileOpenedAt = now

	log.Debug().Str("component", "rotator").Str("file", filename).Msg("opened new file")
	return nil
}

// Close flushes and closes the current file
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return nil
	}

	if err := r.currentWriter.Flush(); err != nil {
		return err
	}
	if err := r.currentFile.Close(); err != nil {
		return err
	}

	// Move to warm if it has data
	if r.reportCount > 0 {
		warmPath := filepath.Join(r.warmDir, filepath.Base(r.currentPath))
		if err := os.Rename(r.currentPath, warmPath); err != nil {
			return err
		}
		log.Info().Str("component", "rotator").
			Str("file", filepath.Base(r.currentPath)).Int("reports", r.reportCount).
			Msg("closed and moved to warm storage")
	} else {
		os.Remove(r.currentPath)
	}

	r.currentFile = nil
	return nil
}

// Stats returns current rotator statistics
func (r *FileRotator) Stats() (reportsInCurrentFile int, currentFileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportCount, filepath.Base(r.currentPath)
}

// CompressWarm moves every warm file to cold storage.
func (r *FileRotator) CompressWarm() (int, error) {
	r.mu.Lock()
	warmDir, coldDir := r.warmDir, r.coldDir
	r.mu.Unlock()

	entries, err := os.ReadDir(warmDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list warm storage: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		if err := CompressToCold(filepath.Join(warmDir, e.Name()), coldDir); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CompressToCold compresses a warm file with zstd and moves it to cold storage
func CompressToCold(warmPath, coldDir string) error {
	src, err := os.Open(warmPath)
	if err != nil {
		return err
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(warmPath)+".zst")
	dst, err := os.Create(coldPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := os.Remove(warmPath); err != nil {
		return err
	}

	log.Info().Str("component", "rotator").Str("file", filepath.Base(warmPath)).Msg("compressed to cold storage")
	return nil
}

// ReadCold decompresses a cold archive and returns its rows.
func ReadCold(path string) ([]ReportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var rows []ReportRow
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var row ReportRow
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}
