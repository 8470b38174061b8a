package config

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultProfile is the configuration profile used when none is named
const DefaultProfile = "default"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	sowing_date TEXT NOT NULL,
	harvest_date TEXT NOT NULL,
	algorithm TEXT,
	policy TEXT,
	trials INTEGER,
	seed INTEGER,
	workers INTEGER,
	uncertainty_fit TEXT,
	polynomial_degree INTEGER,
	jitter BOOLEAN DEFAULT 0,
	input_csv TEXT,
	input_field TEXT,
	output_csv TEXT,
	output_json TEXT,
	output_msgpack TEXT,
	output_chart_png TEXT,
	output_chart_html TEXT,
	output_report BOOLEAN DEFAULT 0,
	output_compare BOOLEAN DEFAULT 0,
	server_listen_addr TEXT,
	server_port INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS storage_configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	config_id INTEGER NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	backend_type TEXT NOT NULL,
	enabled BOOLEAN DEFAULT 1,
	sqlite_path TEXT,
	timescale_connection_string TEXT
);
`

// SQLiteProvider implements ConfigProvider for named analysis profiles kept in a
// SQLite database
type SQLiteProvider struct {
	db      *sql.DB
	dbPath  string
	profile string
}

// NewSQLiteProvider creates a new SQLite configuration provider and ensures its schema exists
func NewSQLiteProvider(dbPath, profile string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configuration schema: %w", err)
	}

	if profile == "" {
		profile = DefaultProfile
	}

	return &SQLiteProvider{
		db:      db,
		dbPath:  dbPath,
		profile: profile,
	}, nil
}

// LoadConfig loads the complete configuration of the selected profile
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	var (
		configID                                     int64
		algorithm, policy, uncertaintyFit            sql.NullString
		trials, seed, workers, degree, serverPort    sql.NullInt64
		jitter, report, compare                      sql.NullBool
		inputCSV, inputField                         sql.NullString
		outCSV, outJSON, outMsgPack, outPNG, outHTML sql.NullString
		serverListenAddr                             sql.NullString
	)

	query := `
		SELECT id, sowing_date, harvest_date,
		       algorithm, policy, trials, seed, workers, uncertainty_fit, polynomial_degree, jitter,
		       input_csv, input_field,
		       output_csv, output_json, output_msgpack, output_chart_png, output_chart_html,
		       output_report, output_compare,
		       server_listen_addr, server_port
		FROM configs
		WHERE name = ?
	`
	err := s.db.QueryRow(query, s.profile).Scan(
		&configID, &config.Season.SowingDate, &config.Season.HarvestDate,
		&algorithm, &policy, &trials, &seed, &workers, &uncertaintyFit, &degree, &jitter,
		&inputCSV, &inputField,
		&outCSV, &outJSON, &outMsgPack, &outPNG, &outHTML,
		&report, &compare,
		&serverListenAddr, &serverPort,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("configuration profile %q not found", s.profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration profile %q: %w", s.profile, err)
	}

	config.Analysis = AnalysisData{
		Algorithm:        algorithm.String,
		Policy:           policy.String,
		Trials:           int(trials.Int64),
		Seed:             seed.Int64,
		Workers:          int(workers.Int64),
		UncertaintyFit:   uncertaintyFit.String,
		PolynomialDegree: int(degree.Int64),
		Jitter:           jitter.Bool,
	}
	config.Input = InputData{CSV: inputCSV.String, Field: inputField.String}
	config.Output = OutputData{
		CSV:       outCSV.String,
		JSON:      outJSON.String,
		MsgPack:   outMsgPack.String,
		ChartPNG:  outPNG.String,
		ChartHTML: outHTML.String,
		Report:    report.Bool,
		Compare:   compare.Bool,
	}
	if serverPort.Valid || serverListenAddr.Valid {
		config.Server = &ServerData{ListenAddr: serverListenAddr.String, Port: int(serverPort.Int64)}
	}

	storage, err := s.storageConfig(configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	config.ApplyDefaults()
	return config, nil
}

// GetSeason returns the season section of the selected profile
func (s *SQLiteProvider) GetSeason() (*SeasonData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Season, nil
}

// GetAnalysis returns the analysis section of the selected profile
func (s *SQLiteProvider) GetAnalysis() (*AnalysisData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Analysis, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	var configID int64
	err := s.db.QueryRow("SELECT id FROM configs WHERE name = ?", s.profile).Scan(&configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("configuration profile %q not found", s.profile)
		}
		return nil, err
	}
	return s.storageConfig(configID)
}

func (s *SQLiteProvider) storageConfig(configID int64) (*StorageData, error) {
	rows, err := s.db.Query(`
		SELECT backend_type, sqlite_path, timescale_connection_string
		FROM storage_configs
		WHERE config_id = ? AND enabled = 1
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var sqlitePath, timescaleConnectionString sql.NullString
		if err := rows.Scan(&backendType, &sqlitePath, &timescaleConnectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "sqlite":
			if sqlitePath.Valid {
				storage.SQLite = &SQLiteData{Path: sqlitePath.String}
			}
		case "timescaledb":
			if timescaleConnectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{ConnectionString: timescaleConnectionString.String}
			}
		}
	}
	return storage, rows.Err()
}

// Profiles lists the stored profile names
func (s *SQLiteProvider) Profiles() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM configs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the selected profile with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM storage_configs WHERE config_id IN (SELECT id FROM configs WHERE name = ?)", s.profile); err != nil {
		return fmt.Errorf("failed to clear storage configs: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM configs WHERE name = ?", s.profile); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	a := configData.Analysis
	o := configData.Output
	var listenAddr sql.NullString
	var port sql.NullInt64
	if configData.Server != nil {
		listenAddr = nullString(configData.Server.ListenAddr)
		port = sql.NullInt64{Int64: int64(configData.Server.Port), Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO configs (
			name, sowing_date, harvest_date,
			algorithm, policy, trials, seed, workers, uncertainty_fit, polynomial_degree, jitter,
			input_csv, input_field,
			output_csv, output_json, output_msgpack, output_chart_png, output_chart_html,
			output_report, output_compare,
			server_listen_addr, server_port
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.profile, configData.Season.SowingDate, configData.Season.HarvestDate,
		nullString(a.Algorithm), nullString(a.Policy), a.Trials, a.Seed, a.Workers,
		nullString(a.UncertaintyFit), a.PolynomialDegree, a.Jitter,
		nullString(configData.Input.CSV), nullString(configData.Input.Field),
		nullString(o.CSV), nullString(o.JSON), nullString(o.MsgPack), nullString(o.ChartPNG), nullString(o.ChartHTML),
		o.Report, o.Compare,
		listenAddr, port,
	)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	configID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	if sqlite := configData.Storage.SQLite; sqlite != nil {
		if _, err := tx.Exec(`INSERT INTO storage_configs (config_id, backend_type, sqlite_path) VALUES (?, 'sqlite', ?)`,
			configID, sqlite.Path); err != nil {
			return fmt.Errorf("failed to insert sqlite storage config: %w", err)
		}
	}
	if ts := configData.Storage.TimescaleDB; ts != nil {
		if _, err := tx.Exec(`INSERT INTO storage_configs (config_id, backend_type, timescale_connection_string) VALUES (?, 'timescaledb', ?)`,
			configID, ts.ConnectionString); err != nil {
			return fmt.Errorf("failed to insert timescaledb storage config: %w", err)
		}
	}

	// Commit transaction
	return tx.Commit()
}

// Helper functions for handling nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
