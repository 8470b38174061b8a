package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetSeason() (*SeasonData, error)
	GetAnalysis() (*AnalysisData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// PolicyNone disables cover normalization
const PolicyNone = "none"

// DateLayouts are the accepted season date formats, tried in order
var DateLayouts = []string{"02.01.2006", "2006-01-02", time.RFC3339}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Season   SeasonData   `json:"season"`
	Analysis AnalysisData `json:"analysis"`
	Input    InputData    `json:"input,omitempty"`
	Storage  StorageData  `json:"storage,omitempty"`
	Output   OutputData   `json:"output,omitempty"`
	Server   *ServerData  `json:"server,omitempty"`
}

// SeasonData holds the crop season anchors
type SeasonData struct {
	SowingDate  string `json:"sowing_date"`
	HarvestDate string `json:"harvest_date"`
}

// AnalysisData holds reconstruction and uncertainty settings
type AnalysisData struct {
	Algorithm        string `json:"algorithm,omitempty"`
	Policy           string `json:"policy,omitempty"`
	Trials           int    `json:"trials,omitempty"`
	Seed             int64  `json:"seed,omitempty"`
	Workers          int    `json:"workers,omitempty"`
	UncertaintyFit   string `json:"uncertainty_fit,omitempty"`
	PolynomialDegree int    `json:"polynomial_degree,omitempty"`
	Jitter           bool   `json:"jitter,omitempty"`
}

// InputData selects where observations come from
type InputData struct {
	CSV   string `json:"csv,omitempty"`
	Field string `json:"field,omitempty"`
}

// StorageData holds the configuration for the storage backends
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// OutputData lists the artifacts written after an analysis. Empty paths are skipped.
type OutputData struct {
	CSV       string `json:"csv,omitempty"`
	JSON      string `json:"json,omitempty"`
	MsgPack   string `json:"msgpack,omitempty"`
	ChartPNG  string `json:"chart_png,omitempty"`
	ChartHTML string `json:"chart_html,omitempty"`
	Report    bool   `json:"report,omitempty"`
	Compare   bool   `json:"compare,omitempty"`
}

// ServerData configures the REST server
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// ApplyDefaults fills unset analysis and server settings
func (c *ConfigData) ApplyDefaults() {
	defaults := phenology.DefaultOptions()
	if c.Analysis.Algorithm == "" {
		c.Analysis.Algorithm = string(defaults.Algorithm)
	}
	if c.Analysis.Policy == "" {
		c.Analysis.Policy = string(defaults.Policy)
	}
	if c.Analysis.Trials == 0 {
		c.Analysis.Trials = defaults.Trials
	}
	if c.Analysis.Workers == 0 {
		c.Analysis.Workers = defaults.Workers
	}
	if c.Analysis.PolynomialDegree == 0 {
		c.Analysis.PolynomialDegree = defaults.PolynomialDegree
	}
	if c.Server != nil && c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// Validate parses every name and date so configuration errors surface before any output
func (c *ConfigData) Validate() error {
	if _, err := c.SeasonRange(); err != nil {
		return err
	}
	if _, err := c.AnalysisOptions(); err != nil {
		return err
	}
	if c.Input.CSV == "" && c.Input.Field == "" {
		return fmt.Errorf("%w: input needs a csv path or a field name", phenology.ErrConfiguration)
	}
	if c.Input.Field != "" && c.Input.CSV == "" && c.Storage.SQLite == nil && c.Storage.TimescaleDB == nil {
		return fmt.Errorf("%w: loading field %q needs a storage backend", phenology.ErrConfiguration, c.Input.Field)
	}
	return nil
}

// SeasonRange parses the season anchors
func (c *ConfigData) SeasonRange() (phenology.Season, error) {
	start, err := ParseDate(c.Season.SowingDate)
	if err != nil {
		return phenology.Season{}, fmt.Errorf("sowing date: %w", err)
	}
	end, err := ParseDate(c.Season.HarvestDate)
	if err != nil {
		return phenology.Season{}, fmt.Errorf("harvest date: %w", err)
	}
	return phenology.NewSeason(start, end)
}

// AnalysisOptions converts the analysis section to pipeline options
func (c *ConfigData) AnalysisOptions() (phenology.Options, error) {
	a := c.Analysis
	opts := phenology.Options{
		Trials:           a.Trials,
		Seed:             a.Seed,
		Workers:          a.Workers,
		PolynomialDegree: a.PolynomialDegree,
		Jitter:           a.Jitter,
	}

	alg, err := phenology.ParseAlgorithm(a.Algorithm)
	if err != nil {
		return opts, err
	}
	opts.Algorithm = alg

	if !strings.EqualFold(a.Policy, PolicyNone) {
		policy, err := phenology.ParsePolicy(a.Policy)
		if err != nil {
			return opts, err
		}
		opts.Policy = policy
	}

	if a.UncertaintyFit != "" {
		kind, err := phenology.ParseFitKind(a.UncertaintyFit)
		if err != nil {
			return opts, err
		}
		opts.UncertaintyFit = kind
	}

	return opts, opts.Validate()
}

// ParseDate parses a calendar date in any of DateLayouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is empty", phenology.ErrConfiguration)
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q (expected DD.MM.YYYY or YYYY-MM-DD)",
		phenology.ErrConfiguration, s)
}
