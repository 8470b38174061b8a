package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// ParseYAML converts YAML configuration text to ConfigData with defaults applied
func ParseYAML(data []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Season: SeasonData{
			SowingDate:  yamlConfig.Season.SowingDate,
			HarvestDate: yamlConfig.Season.HarvestDate,
		},
		Analysis: AnalysisData{
			Algorithm:        yamlConfig.Analysis.Algorithm,
			Policy:           yamlConfig.Analysis.Policy,
			Trials:           yamlConfig.Analysis.Trials,
			Seed:             yamlConfig.Analysis.Seed,
			Workers:          yamlConfig.Analysis.Workers,
			UncertaintyFit:   yamlConfig.Analysis.UncertaintyFit,
			PolynomialDegree: yamlConfig.Analysis.PolynomialDegree,
			Jitter:           yamlConfig.Analysis.Jitter,
		},
		Input: InputData{
			CSV:   yamlConfig.Input.CSV,
			Field: yamlConfig.Input.Field,
		},
		Output: OutputData{
			CSV:       yamlConfig.Output.CSV,
			JSON:      yamlConfig.Output.JSON,
			MsgPack:   yamlConfig.Output.MsgPack,
			ChartPNG:  yamlConfig.Output.ChartPNG,
			ChartHTML: yamlConfig.Output.ChartHTML,
			Report:    yamlConfig.Output.Report,
			Compare:   yamlConfig.Output.Compare,
		},
	}

	// Convert storage
	if yamlConfig.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: yamlConfig.Storage.SQLite.Path}
	}
	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	if yamlConfig.Server != nil {
		config.Server = &ServerData{
			ListenAddr: yamlConfig.Server.ListenAddr,
			Port:       yamlConfig.Server.Port,
		}
	}

	config.ApplyDefaults()
	return config, nil
}

// GetSeason returns the season section
func (y *YAMLProvider) GetSeason() (*SeasonData, error) {
	if err := y.ensureLoaded(); err != nil {
		return nil, err
	}
	return &y.config.Season, nil
}

// GetAnalysis returns the analysis section
func (y *YAMLProvider) GetAnalysis() (*AnalysisData, error) {
	if err := y.ensureLoaded(); err != nil {
		return nil, err
	}
	return &y.config.Analysis, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if err := y.ensureLoaded(); err != nil {
		return nil, err
	}
	return &y.config.Storage, nil
}

func (y *YAMLProvider) ensureLoaded() error {
	if y.config == nil {
		_, err := y.LoadConfig()
		return err
	}
	return nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type ConfigYAML struct {
	Season   SeasonYAML   `yaml:"season"`
	Analysis AnalysisYAML `yaml:"analysis,omitempty"`
	Input    InputYAML    `yaml:"input,omitempty"`
	Storage  StorageYAML  `yaml:"storage,omitempty"`
	Output   OutputYAML   `yaml:"output,omitempty"`
	Server   *ServerYAML  `yaml:"server,omitempty"`
}

type SeasonYAML struct {
	SowingDate  string `yaml:"sowing-date"`
	HarvestDate string `yaml:"harvest-date"`
}

type AnalysisYAML struct {
	Algorithm        string `yaml:"algorithm,omitempty"`
	Policy           string `yaml:"policy,omitempty"`
	Trials           int    `yaml:"trials,omitempty"`
	Seed             int64  `yaml:"seed,omitempty"`
	Workers          int    `yaml:"workers,omitempty"`
	UncertaintyFit   string `yaml:"uncertainty-fit,omitempty"`
	PolynomialDegree int    `yaml:"polynomial-degree,omitempty"`
	Jitter           bool   `yaml:"jitter,omitempty"`
}

type InputYAML struct {
	CSV   string `yaml:"csv,omitempty"`
	Field string `yaml:"field,omitempty"`
}

type StorageYAML struct {
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type OutputYAML struct {
	CSV       string `yaml:"csv,omitempty"`
	JSON      string `yaml:"json,omitempty"`
	MsgPack   string `yaml:"msgpack,omitempty"`
	ChartPNG  string `yaml:"chart-png,omitempty"`
	ChartHTML string `yaml:"chart-html,omitempty"`
	Report    bool   `yaml:"report,omitempty"`
	Compare   bool   `yaml:"compare,omitempty"`
}

type ServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
}
