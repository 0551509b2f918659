// Package workload loads pre-declared processes from CSV files. Each row is
// name,memory-bytes[,instruction-count]; a zero memory or a missing count
// leaves the value to the process generator.
package workload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidArgs  = errors.New("invalid args")
	ErrMalformedRow = errors.New("malformed workload row")
)

type Entry struct {
	Name         string
	Memory       int
	Instructions int
}

// Open opens the one workload file named in args. The returned func closes
// the file.
func Open(args ...string) (*os.File, func(), error) {
	if len(args) != 1 || args[0] == "" {
		return nil, nil, fmt.Errorf("%w: must give exactly one workload file", ErrInvalidArgs)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening workload file", err)
	}
	closeFn := func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Error("closing workload file")
		}
	}
	return f, closeFn, nil
}

// Load parses every row of r. Lines starting with '#' are skipped.
func Load(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: reading CSV", err)
	}

	entries := make([]Entry, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		e, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d", err, i+1)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: row %d: duplicate name %q", ErrMalformedRow, i+1, e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}
	return entries, nil
}

func parseRow(row []string) (Entry, error) {
	if len(row) < 2 || len(row) > 3 {
		return Entry{}, fmt.Errorf("%w: want 2 or 3 fields, got %d", ErrMalformedRow, len(row))
	}

	e := Entry{Name: strings.TrimSpace(row[0])}
	if e.Name == "" {
		return Entry{}, fmt.Errorf("%w: empty name", ErrMalformedRow)
	}

	var err error
	if e.Memory, err = nonNegative(row[1]); err != nil {
		return Entry{}, err
	}
	if len(row) == 3 {
		if e.Instructions, err = nonNegative(row[2]); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func nonNegative(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value %d", ErrMalformedRow, n)
	}
	return n, nil
}
