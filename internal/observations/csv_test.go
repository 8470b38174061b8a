package observations

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/google/go-cmp/cmp"
)

func TestParseCSV(t *testing.T) {
	input := `phenomenonTime,NDVI
2024-03-10T10:32:11.000Z,0.52
2023-10-08T10:30:00Z,0.14
2023-12-01,0.27
2023-12-01,0.29
`
	obs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []phenology.Observation{
		{Date: time.Date(2023, 10, 8, 10, 30, 0, 0, time.UTC), Index: 0.14},
		{Date: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), Index: 0.27},
		{Date: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), Index: 0.29},
		{Date: time.Date(2024, 3, 10, 10, 32, 11, 0, time.UTC), Index: 0.52},
	}
	if diff := cmp.Diff(expected, obs); diff != "" {
		t.Errorf("observations mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCSVWithoutHeader(t *testing.T) {
	obs, err := ParseCSV(strings.NewReader("05.10.2023, 0.11\n2023-10-20 09:00:00,0.18\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if !obs[0].Date.Equal(time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected first date %v", obs[0].Date)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "phenomenonTime,NDVI\n"},
		{"single column", "2023-10-05\n"},
		{"bad value", "phenomenonTime,NDVI\n2023-10-05,high\n"},
		{"bad timestamp after header", "phenomenonTime,NDVI\nyesterday,0.3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}

	_, err := ParseCSV(strings.NewReader("phenomenonTime,NDVI\n"))
	if !errors.Is(err, ErrNoObservations) {
		t.Errorf("expected ErrNoObservations, got %v", err)
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndvi.csv")
	if err := os.WriteFile(path, []byte("phenomenonTime,NDVI\n2023-10-05,0.12\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	obs, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 1 || obs[0].Index != 0.12 {
		t.Errorf("unexpected observations %+v", obs)
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWindow(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2023, 10, d, 12, 0, 0, 0, time.UTC) }
	obs := []phenology.Observation{{Date: day(1)}, {Date: day(3)}, {Date: day(5)}, {Date: day(7)}}

	got := Window(obs, time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC), time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC))
	if len(got) != 2 || !got[0].Date.Equal(day(3)) || !got[1].Date.Equal(day(5)) {
		t.Errorf("unexpected window %+v", got)
	}
}
