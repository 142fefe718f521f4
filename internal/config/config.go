package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"icdeck/internal/faults"
)

// Drift check modes for flows.drift_check.
const (
	DriftCheckAlways = "always"
	DriftCheckLocal  = "local"
	DriftCheckNever  = "never"
)

// Storage backends for storage.backend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

type Config struct {
	Environment string `yaml:"environment"`
	AWS         struct {
		Region string `yaml:"region"`
	} `yaml:"aws"`
	Kendra struct {
		IndexID  string `yaml:"index_id"`
		RoleARN  string `yaml:"role_arn"`
		PageSize int32  `yaml:"page_size"`
	} `yaml:"kendra"`
	Flows struct {
		ExecutionRoleARN string  `yaml:"execution_role_arn"`
		AliasName        string  `yaml:"alias_name"`
		DriftCheck       string  `yaml:"drift_check"`
		ModelID          string  `yaml:"model_id"`
		MaxTokens        int32   `yaml:"max_tokens"`
		Temperature      float32 `yaml:"temperature"`
		TopP             float32 `yaml:"top_p"`
	} `yaml:"flows"`
	Evidence struct {
		ParallelQueries int `yaml:"parallel_queries"`
	} `yaml:"evidence"`
	Buckets struct {
		Input  string `yaml:"input"`
		Output string `yaml:"output"`
	} `yaml:"buckets"`
	Report struct {
		Prefix   string `yaml:"prefix"`
		LocalDir string `yaml:"local_dir"`
		RunDir   string `yaml:"run_dir"`
	} `yaml:"report"`
	Storage struct {
		Backend  string   `yaml:"backend"`
		Path     string   `yaml:"path"`
		Dir      string   `yaml:"dir"`
		RedisURL string   `yaml:"redis_url"`
		Etcd     []string `yaml:"etcd_endpoints"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Environment = "production"
	cfg.AWS.Region = "us-east-1"
	cfg.Kendra.PageSize = 10
	cfg.Flows.AliasName = "LATEST"
	cfg.Flows.DriftCheck = DriftCheckAlways
	cfg.Flows.ModelID = "anthropic.claude-instant-v1"
	cfg.Flows.MaxTokens = 2000
	cfg.Flows.Temperature = 0.5
	cfg.Flows.TopP = 0.9
	cfg.Evidence.ParallelQueries = 1
	cfg.Report.Prefix = "output"
	cfg.Report.RunDir = ".icdeck/runs"
	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.Path = ".icdeck/icdeck.db"
	cfg.Storage.Dir = ".icdeck/fingerprints"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return &cfg
}

// LoadConfig reads .env, then the YAML file at path (when it exists) over the
// defaults, then environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.Kendra.IndexID, "KENDRA_INDEX_ID")
	setString(&cfg.Kendra.RoleARN, "KENDRA_ROLE_ARN")
	setString(&cfg.Flows.ExecutionRoleARN, "FLOW_EXECUTION_ROLE_ARN")
	setString(&cfg.Buckets.Input, "INPUT_BUCKET_NAME")
	setString(&cfg.Buckets.Output, "OUTPUT_BUCKET_NAME")
	setString(&cfg.Flows.DriftCheck, "ICDECK_DRIFT_CHECK")
	setString(&cfg.Flows.ModelID, "ICDECK_MODEL_ID")
	setString(&cfg.Storage.Backend, "ICDECK_STORAGE_BACKEND")
	setString(&cfg.Storage.Path, "ICDECK_DB_PATH")
	setString(&cfg.Storage.RedisURL, "ICDECK_REDIS_URL")
	setString(&cfg.Report.LocalDir, "ICDECK_REPORT_DIR")
	setString(&cfg.Log.Level, "ICDECK_LOG_LEVEL")
	setString(&cfg.Log.Format, "ICDECK_LOG_FORMAT")

	if v := os.Getenv("ICDECK_ETCD_ENDPOINTS"); v != "" {
		cfg.Storage.Etcd = strings.Split(v, ",")
	}
	if v := os.Getenv("ICDECK_PARALLEL_QUERIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ICDECK_PARALLEL_QUERIES %q: %w", v, err)
		}
		cfg.Evidence.ParallelQueries = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks enumerated values. Remote identifiers are checked by the
// commands that need them.
func (c *Config) Validate() error {
	switch c.Flows.DriftCheck {
	case DriftCheckAlways, DriftCheckLocal, DriftCheckNever:
	default:
		return fmt.Errorf("invalid flows.drift_check %q", c.Flows.DriftCheck)
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile, BackendRedis, BackendEtcd:
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	if c.Evidence.ParallelQueries < 1 {
		c.Evidence.ParallelQueries = 1
	}
	return nil
}

// DriftCheckEnabled reports whether existing flows are compared against the
// local prompt fingerprint during registry initialization.
func (c *Config) DriftCheckEnabled() bool {
	switch c.Flows.DriftCheck {
	case DriftCheckNever:
		return false
	case DriftCheckLocal:
		return strings.EqualFold(c.Environment, "local")
	default:
		return true
	}
}

// RequireRetrieval returns an error when the evidence index is not configured.
func (c *Config) RequireRetrieval() error {
	if c.Kendra.IndexID == "" {
		return faults.Configuration("config.RequireRetrieval", "KENDRA_INDEX_ID is not set")
	}
	return nil
}

// RequireFlows returns an error when flows cannot be created.
func (c *Config) RequireFlows() error {
	if c.Flows.ExecutionRoleARN == "" {
		return faults.Configuration("config.RequireFlows", "FLOW_EXECUTION_ROLE_ARN is not set")
	}
	return nil
}

// RequireBucket returns an error when the named bucket setting is empty.
func (c *Config) RequireBucket(envName, bucket string) error {
	if bucket == "" {
		return faults.Configuration("config.RequireBucket", "%s is not set", envName)
	}
	return nil
}
