// Package flatten turns the harvested per-player payloads into a single JSON
// array of flat records.
package flatten

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/albapepper/yahoo-harvest/internal/rawstore"
)

// DefaultLimit is how many raw files a run reads.
const DefaultLimit = 100

// Options controls a flatten run.
type Options struct {
	RawDir string
	Output string
	// Overwrite replaces an existing output file. When false and the file
	// exists, the run writes nothing.
	Overwrite bool
	// Limit caps the number of raw files read, in directory listing order.
	// Zero means DefaultLimit; negative reads every file.
	Limit int
}

// Stats describes a finished run.
type Stats struct {
	Files   int
	Written bool
}

// Run reads up to Limit raw files, flattens each into a Record and writes
// the records as one JSON array to Output.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0:
		limit = 0
	}

	entries, err := rawstore.New(opts.RawDir).List(limit)
	if err != nil {
		return Stats{}, err
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		rec, err := parseEntry(e)
		if err != nil {
			return Stats{}, err
		}
		if err := rec.Check(); err != nil {
			return Stats{}, err
		}
		records = append(records, rec)
	}

	stats := Stats{Files: len(records)}
	if !opts.Overwrite {
		if _, err := os.Stat(opts.Output); err == nil {
			logger.Info("Output exists, leaving it untouched", "path", opts.Output)
			return stats, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return stats, fmt.Errorf("stat output: %w", err)
		}
	}

	if err := writeRecords(opts.Output, records); err != nil {
		return stats, err
	}
	stats.Written = true
	logger.Info("Wrote players", "path", opts.Output, "records", len(records))
	return stats, nil
}

// parseEntry reads one raw file into a Record.
var parseEntry = parseFile

func parseFile(e rawstore.Entry) (Record, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return Record{}, fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()
	return ParseRecord(e.Name, f)
}

func writeRecords(path string, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
