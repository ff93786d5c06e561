// Package config holds typed configuration for every component,
// loaded from YAML with environment-variable overrides for secrets
// and connection strings, matching the shape used elsewhere in the
// organization's Go services (one root struct, one sub-struct per
// concern, yaml tags throughout).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, built once at startup and
// passed by reference to every component constructor.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Store      StoreConfig      `yaml:"store"`
	Graph      GraphConfig      `yaml:"graph"`
	KV         KVConfig         `yaml:"kv"`
	Vault      VaultConfig      `yaml:"vault"`
	LLM        LLMConfig        `yaml:"llm"`
	TaskRunner TaskRunnerConfig `yaml:"task_runner"`
	Session    SessionDefaults  `yaml:"session_defaults"`
	Mastery    MasteryDefaults  `yaml:"mastery_defaults"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// StoreConfig configures the relational store (C2).
type StoreConfig struct {
	DSN string `yaml:"dsn"` // sqlite file path; env STORE_DSN overrides
}

// GraphConfig configures the graph store adapter (C4).
type GraphConfig struct {
	URI      string `yaml:"uri"`      // env GRAPH_URI overrides
	Username string `yaml:"username"` // env GRAPH_USERNAME overrides
	Password string `yaml:"-"`        // never read from YAML; env GRAPH_PASSWORD only
	Database string `yaml:"database"`
}

// KVConfig configures the key-value store (priority queues, caches).
type KVConfig struct {
	Addr     string `yaml:"addr"`     // env KV_ADDR overrides
	Password string `yaml:"-"`        // env KV_PASSWORD only
	DB       int    `yaml:"db"`
}

// VaultConfig configures the filesystem vault (C3).
type VaultConfig struct {
	RootPath string   `yaml:"root_path"` // env OBSIDIAN_VAULT_PATH overrides
	DataDir  string   `yaml:"data_dir"`  // env DATA_DIR overrides
	UploadDir string  `yaml:"upload_dir"` // env UPLOAD_DIR overrides
	SystemFolders []string `yaml:"system_folders"`
	ContentTypeFolders map[string][]string `yaml:"content_type_folders"`
}

// LLMConfig names which model backs each operation.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // "genai" | "ollama"
	TextModel         string        `yaml:"text_model"`
	VisionModel       string        `yaml:"vision_model"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	APIKey            string        `yaml:"-"` // env LLM_API_KEY only
	BaseURL           string        `yaml:"base_url"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

// TaskRunnerConfig configures C15's queues and time limits.
type TaskRunnerConfig struct {
	SoftTimeLimit       time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit       time.Duration `yaml:"hard_time_limit"`
	BookSoftTimeLimit   time.Duration `yaml:"book_soft_time_limit"`
	BookHardTimeLimit   time.Duration `yaml:"book_hard_time_limit"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxAttempts    int           `yaml:"retry_max_attempts"`
	WorkersPerQueue     int           `yaml:"workers_per_queue"`
}

// SessionDefaults are the tunable constants behind C13's budget model.
type SessionDefaults struct {
	DefaultContentMode      string  `yaml:"default_content_mode"`
	DefaultExerciseSource   string  `yaml:"default_exercise_source"`
	DefaultCardSource       string  `yaml:"default_card_source"`
	TopicExerciseRatio      float64 `yaml:"topic_exercise_ratio"`
	TimeRatioWeakSpots      float64 `yaml:"time_ratio_weak_spots"`
	TimeRatioNewContent     float64 `yaml:"time_ratio_new_content"`
	TimePerExerciseMinutes  float64 `yaml:"time_per_exercise_minutes"`
	TimePerCardMinutes      float64 `yaml:"time_per_card_minutes"`
	MinTimeForExercise      float64 `yaml:"min_time_for_exercise"`
	MinTimeForCard          float64 `yaml:"min_time_for_card"`
}

// MasteryDefaults are the tunable constants behind C14 (spec.md Open
// Question 3: thresholds are configuration, not hardcoded literals).
type MasteryDefaults struct {
	MinAttempts                       int     `yaml:"min_attempts"`
	WeakSpotThreshold                 float64 `yaml:"weak_spot_threshold"`
	MasteryStabilityNormalizationDays float64 `yaml:"mastery_stability_normalization_days"`
	TrendThreshold                    float64 `yaml:"trend_threshold"`
	MasteredStabilityThreshold        float64 `yaml:"mastered_stability_threshold"`
	CodeExerciseTestWeight            float64 `yaml:"code_exercise_test_weight"` // Open Question 4
	StreakWindowDays                  int     `yaml:"streak_window_days"`
	LearningCurveWindow               int     `yaml:"learning_curve_window"`
}

// TaxonomyConfig locates the tag taxonomy file.
type TaxonomyConfig struct {
	Path string        `yaml:"path"` // env TAG_TAXONOMY_PATH overrides
	TTL  time.Duration `yaml:"ttl"`
}

// LimitsConfig bounds file sizes and concurrency caps.
type LimitsConfig struct {
	MaxFileSizeBytes   int64 `yaml:"max_file_size_bytes"`
	BookPageConcurrency int  `yaml:"book_page_concurrency"`
}

// Defaults returns a Config with the platform's documented defaults
// (spec.md §4.11, §4.13, §4.15 numeric literals, now tunable here).
func Defaults() *Config {
	return &Config{
		Name:    "secondbrain",
		Version: "0.1.0",
		Store:   StoreConfig{DSN: "secondbrain.db"},
		Graph:   GraphConfig{URI: "neo4j://localhost:7687", Username: "neo4j", Database: "neo4j"},
		KV:      KVConfig{Addr: "localhost:6379"},
		Vault: VaultConfig{
			RootPath: "./vault",
			DataDir:  "./data",
			UploadDir: "./uploads",
			SystemFolders: []string{
				"templates", "meta", "assets/images",
				"exercises", "reviews/due", "reviews/archive",
			},
			ContentTypeFolders: map[string][]string{
				"paper":   {"sources/papers"},
				"article": {"sources/articles"},
				"book":    {"sources/books"},
				"code":    {"sources/code"},
				"idea":    {"sources/ideas"},
				"concept": {"concepts"},
				"daily":   {"daily"},
			},
		},
		LLM: LLMConfig{
			Provider:       "genai",
			TextModel:      "gemini-2.0-flash",
			VisionModel:    "gemini-2.0-flash",
			EmbeddingModel: "text-embedding-004",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		TaskRunner: TaskRunnerConfig{
			SoftTimeLimit:       5 * time.Minute,
			HardTimeLimit:       10 * time.Minute,
			BookSoftTimeLimit:   30 * time.Minute,
			BookHardTimeLimit:   60 * time.Minute,
			RetryInitialBackoff: 60 * time.Second,
			RetryMaxAttempts:    3,
			WorkersPerQueue:     1,
		},
		Session: SessionDefaults{
			DefaultContentMode:     "both",
			DefaultExerciseSource:  "prefer_existing",
			DefaultCardSource:      "prefer_existing",
			TopicExerciseRatio:     0.7,
			TimeRatioWeakSpots:     0.3,
			TimeRatioNewContent:    0.3,
			TimePerExerciseMinutes: 10,
			TimePerCardMinutes:     2,
			MinTimeForExercise:     5,
			MinTimeForCard:         1,
		},
		Mastery: MasteryDefaults{
			MinAttempts:                       3,
			WeakSpotThreshold:                 0.5,
			MasteryStabilityNormalizationDays: 30,
			TrendThreshold:                    0.05,
			MasteredStabilityThreshold:        21,
			CodeExerciseTestWeight:            0.7,
			StreakWindowDays:                  60,
			LearningCurveWindow:               30,
		},
		Taxonomy: TaxonomyConfig{Path: "./config/taxonomy.yaml", TTL: 5 * time.Minute},
		Limits:   LimitsConfig{MaxFileSizeBytes: 100 << 20, BookPageConcurrency: 8},
	}
}

// Load reads YAML from path over the documented defaults, then applies
// environment overrides for anything that must never live in a config
// file on disk (connection secrets, data directories).
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("GRAPH_URI"); v != "" {
		cfg.Graph.URI = v
	}
	if v := os.Getenv("GRAPH_USERNAME"); v != "" {
		cfg.Graph.Username = v
	}
	cfg.Graph.Password = os.Getenv("GRAPH_PASSWORD")
	if v := os.Getenv("KV_ADDR"); v != "" {
		cfg.KV.Addr = v
	}
	cfg.KV.Password = os.Getenv("KV_PASSWORD")
	if v := os.Getenv("OBSIDIAN_VAULT_PATH"); v != "" {
		cfg.Vault.RootPath = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Vault.DataDir = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Vault.UploadDir = v
	}
	if v := os.Getenv("TAG_TAXONOMY_PATH"); v != "" {
		cfg.Taxonomy.Path = v
	}
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
}
