package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/phenology/internal/app"
	"github.com/chrissnell/phenology/internal/log"
	"github.com/chrissnell/phenology/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "phenology.yaml", "Path to configuration source:\n\t\t\t  YAML: phenology.yaml\n\t\t\t  SQLite: phenology.db (named profiles)")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	profile := flag.String("profile", config.DefaultProfile, "Configuration profile to load from a SQLite backend")
	csvPath := flag.String("csv", "", "Observation CSV (phenomenonTime,NDVI); overrides input.csv")
	algorithm := flag.String("algorithm", "", "Reconstruction algorithm: linear-fit, cubic-fit, polynomial-fit, logistic, guided, physiological")
	policy := flag.String("policy", "", "Normalization policy: fixed, extremal, phenological or none")
	trials := flag.Int("trials", 0, "Number of bootstrap trials")
	seed := flag.Int64("seed", 0, "Random seed for the bootstrap (0 seeds from the clock)")
	serve := flag.Bool("serve", false, "Serve the analysis over REST after writing outputs")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("phenology %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend, *profile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	applyOverrides(cfgData, overrides{
		csv:       *csvPath,
		algorithm: *algorithm,
		policy:    *policy,
		trials:    *trials,
		seed:      *seed,
		serve:     *serve,
	})

	if err := cfgData.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	application := app.New(cfgData, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

type overrides struct {
	csv, algorithm, policy string
	trials                 int
	seed                   int64
	serve                  bool
}

// applyOverrides lets command line flags take precedence over the configuration source
func applyOverrides(cfg *config.ConfigData, o overrides) {
	if o.csv != "" {
		cfg.Input.CSV = o.csv
	}
	if o.algorithm != "" {
		cfg.Analysis.Algorithm = o.algorithm
	}
	if o.policy != "" {
		cfg.Analysis.Policy = o.policy
	}
	if o.trials > 0 {
		cfg.Analysis.Trials = o.trials
	}
	if o.seed != 0 {
		cfg.Analysis.Seed = o.seed
	}
	if o.serve && cfg.Server == nil {
		cfg.Server = &config.ServerData{}
		cfg.ApplyDefaults()
	}
}

func loadConfig(cfgFile, cfgBackend, profile string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename, profile)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
