package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taxitrend/internal/domain"
	"taxitrend/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the taxitrend pipeline. It is
// built once by Load and treated as read-only afterwards.
type Config struct {
	Storage     Storage     `yaml:"storage"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Ingestion   Ingestion   `yaml:"ingestion"`
	Cleaning    Cleaning    `yaml:"cleaning"`
	Aggregation Aggregation `yaml:"aggregation"`
}

// Storage holds paths for data persistence. Empty stage directories default
// to subdirectories of DataDir.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	RawDir     string `yaml:"raw_dir"`
	PrunedDir  string `yaml:"pruned_dir"`
	SummaryDir string `yaml:"summary_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Ingestion controls how raw monthly files are fetched.
type Ingestion struct {
	// SourceURL and LocalDataName take the year and month through
	// "{:04d}" and "{:02d}" placeholders, in that order.
	SourceURL     string        `yaml:"source_url"`
	LocalDataName string        `yaml:"local_data_name"`
	StartYear     int           `yaml:"start_year"`
	MaxRetries    int           `yaml:"max_retries"`
	BackoffFactor time.Duration `yaml:"backoff_factor"`
	Timeout       time.Duration `yaml:"timeout"`

	// RequestsPerSecond caps request starts against the source, retries
	// included. Zero disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Cleaning holds the quality thresholds and the column keywords used to
// resolve heterogeneous source schemas.
type Cleaning struct {
	LowestSpeed          float64 `yaml:"lowest_speed"`
	HighestSpeed         float64 `yaml:"highest_speed"`
	ShortestTripDistance float64 `yaml:"shortest_trip_distance"`
	ShortestTripDuration float64 `yaml:"shortest_trip_duration"`
	LeastCost            float64 `yaml:"least_cost"`

	PickupKeyword   string `yaml:"pickup_keyword"`
	DropoffKeyword  string `yaml:"dropoff_keyword"`
	TotalKeyword    string `yaml:"total_keyword"`
	DistanceKeyword string `yaml:"distance_keyword"`
}

// Thresholds returns the numeric filter bounds.
func (c Cleaning) Thresholds() domain.Thresholds {
	return domain.Thresholds{
		LowestSpeed:          c.LowestSpeed,
		HighestSpeed:         c.HighestSpeed,
		ShortestTripDistance: c.ShortestTripDistance,
		ShortestTripDuration: c.ShortestTripDuration,
		LeastCost:            c.LeastCost,
	}
}

// Aggregation controls the summary views.
type Aggregation struct {
	RollingDays            int    `yaml:"rolling_days"`
	MonthlyAverageFileName string `yaml:"monthly_average_file_name"`
	RollingAverageFileName string `yaml:"rolling_average_file_name"`
	ExportCSV              bool   `yaml:"export_csv"`
	ExportXLSX             bool   `yaml:"export_xlsx"`
}

// SummaryFileName returns the configured output file name for an analysis
// type.
func (a Aggregation) SummaryFileName(t domain.AnalysisType) string {
	switch t {
	case domain.MonthlyAverage:
		return a.MonthlyAverageFileName
	case domain.RollingAverage:
		return a.RollingAverageFileName
	}
	return string(t) + "_trip_length.parquet"
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, fills defaults,
// applies environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration populated with the values used for the
// NYC yellow taxi dataset.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir: "artifacts",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Ingestion: Ingestion{
			SourceURL:     "https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_{:04d}-{:02d}.parquet",
			LocalDataName: "yellow_tripdata_{:04d}-{:02d}.parquet",
			StartYear:     2009,
			MaxRetries:    3,
			BackoffFactor: 300 * time.Millisecond,
			Timeout:       5 * time.Minute,

			RequestsPerSecond: 4,
		},
		Cleaning: Cleaning{
			LowestSpeed:          1,
			HighestSpeed:         100,
			ShortestTripDistance: 0,
			ShortestTripDuration: 60,
			LeastCost:            0,
			PickupKeyword:        "pickup",
			DropoffKeyword:       "dropoff",
			TotalKeyword:         "total",
			DistanceKeyword:      "trip_distance",
		},
		Aggregation: Aggregation{
			RollingDays:            45,
			MonthlyAverageFileName: "monthly_average_trip_length.parquet",
			RollingAverageFileName: "rolling_average_trip_length.parquet",
		},
	}
}

// resolvePaths fills empty stage directories from DataDir.
func (c *Config) resolvePaths() {
	if c.Storage.RawDir == "" {
		c.Storage.RawDir = filepath.Join(c.Storage.DataDir, "data_ingestion")
	}
	if c.Storage.PrunedDir == "" {
		c.Storage.PrunedDir = filepath.Join(c.Storage.DataDir, "data_transformation")
	}
	if c.Storage.SummaryDir == "" {
		c.Storage.SummaryDir = filepath.Join(c.Storage.DataDir, "data_visualization")
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "taxitrend.db")
	}
}

// Validate checks invariants the pipeline relies on.
func (c *Config) Validate() error {
	var problems []string

	in := c.Ingestion
	if strings.Count(in.SourceURL, "{:") != 2 {
		problems = append(problems, "ingestion.source_url must contain a year and a month placeholder")
	}
	if strings.Count(in.LocalDataName, "{:") != 2 {
		problems = append(problems, "ingestion.local_data_name must contain a year and a month placeholder")
	} else if !periodRoundTrips(in.LocalDataName) {
		problems = append(problems, "ingestion.local_data_name must end in _{:04d}-{:02d} before the extension")
	}
	if in.MaxRetries < 1 {
		problems = append(problems, "ingestion.max_retries must be at least 1")
	}
	if in.BackoffFactor < 0 {
		problems = append(problems, "ingestion.backoff_factor must not be negative")
	}
	if in.RequestsPerSecond < 0 {
		problems = append(problems, "ingestion.requests_per_second must not be negative")
	}

	cl := c.Cleaning
	if cl.LowestSpeed >= cl.HighestSpeed {
		problems = append(problems, "cleaning.lowest_speed must be below cleaning.highest_speed")
	}
	for name, kw := range map[string]string{
		"pickup_keyword":   cl.PickupKeyword,
		"dropoff_keyword":  cl.DropoffKeyword,
		"total_keyword":    cl.TotalKeyword,
		"distance_keyword": cl.DistanceKeyword,
	} {
		if kw == "" {
			problems = append(problems, "cleaning."+name+" must not be empty")
		}
	}

	ag := c.Aggregation
	if ag.RollingDays < 1 {
		problems = append(problems, "aggregation.rolling_days must be at least 1")
	}
	if ag.MonthlyAverageFileName == "" || ag.RollingAverageFileName == "" {
		problems = append(problems, "aggregation summary file names must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// periodRoundTrips reports whether file names produced by template can be
// parsed back to their period.
func periodRoundTrips(template string) bool {
	want := domain.Period{Year: 2009, Month: time.November}
	got, err := domain.PeriodFromFilename(util.FormatPeriod(template, want.Year, int(want.Month)))
	return err == nil && got == want
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TAXITREND_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("TAXITREND_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("TAXITREND_SOURCE_URL"); v != "" {
		cfg.Ingestion.SourceURL = v
	}

	if v := os.Getenv("TAXITREND_ROLLING_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Aggregation.RollingDays = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
