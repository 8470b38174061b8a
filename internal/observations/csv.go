// Package observations loads vegetation index observations from two-column CSV exports
// (timestamp, NDVI) such as those produced by sensor data portals.
package observations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
)

// TimestampLayouts are the accepted observation timestamp formats, tried in order
var TimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"02.01.2006",
}

// ErrNoObservations reports a file without a single data row
var ErrNoObservations = errors.New("no observations found")

// LoadCSV reads observations from a CSV file
func LoadCSV(path string) ([]phenology.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer f.Close()

	obs, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obs, nil
}

// ParseCSV reads observations from the first two columns of CSV data. A leading
// header row is detected and skipped. The result is sorted by date; timestamps are
// converted to UTC and duplicate dates are kept.
func ParseCSV(r io.Reader) ([]phenology.Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var obs []phenology.Observation
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line++

		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 columns, got %d", line, len(record))
		}

		ts, tsErr := ParseTimestamp(record[0])
		if tsErr != nil && line == 1 {
			// header row
			continue
		}
		if tsErr != nil {
			return nil, fmt.Errorf("line %d: %w", line, tsErr)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid index value %q", line, record[1])
		}

		obs = append(obs, phenology.Observation{Date: ts, Index: value})
	}

	if len(obs) == 0 {
		return nil, ErrNoObservations
	}

	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return obs, nil
}

// ParseTimestamp parses an observation timestamp in any of TimestampLayouts
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Window returns the observations dated within [from, to], both days inclusive
func Window(obs []phenology.Observation, from, to time.Time) []phenology.Observation {
	var out []phenology.Observation
	season := phenology.Season{Start: from, End: to}
	for _, o := range obs {
		if season.Contains(season.DayOffset(o.Date)) {
			out = append(out, o)
		}
	}
	return out
}
