package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"turkish-name-generator/internal/generator"
	"turkish-name-generator/internal/logging"
	"turkish-name-generator/internal/predictor"
)

// Model sources.
const (
	ModelKindArtifact = "artifact"
	ModelKindRemote   = "remote"
)

const (
	DefaultCorpusPath     = "data/names_ascii.txt"
	DefaultModelPath      = "model/tr_name_generate_model.yaml"
	DefaultModelCacheSize = 4096
	DefaultMetricsAddr    = ":9090"
)

// Config is the process configuration. Values are layered: defaults, then the
// YAML file, then NAMEGEN_* environment variables, then command-line flags.
type Config struct {
	CorpusPath  string           `json:"corpusPath"`
	Model       ModelConfig      `json:"model"`
	Generation  GenerationConfig `json:"generation"`
	MetricsAddr string           `json:"metricsAddr"`
	Verbosity   int              `json:"verbosity"`
	Development bool             `json:"development"`
}

type ModelConfig struct {
	Kind    string   `json:"kind"`
	Path    string   `json:"path"`
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
	// CacheSize is the number of windows memoised; 0 disables the cache.
	CacheSize int `json:"cacheSize"`
}

type GenerationConfig struct {
	MaxSteps   int `json:"maxSteps"`
	MaxRetries int `json:"maxRetries"`
	// RandomSeed makes generation reproducible. Unset seeds from the clock.
	RandomSeed *int64 `json:"randomSeed,omitempty"`
	Trace      bool   `json:"trace"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func defaultConfig() *Config {
	opts := generator.DefaultOptions()
	return &Config{
		CorpusPath: DefaultCorpusPath,
		Model: ModelConfig{
			Kind:      ModelKindArtifact,
			Path:      DefaultModelPath,
			Timeout:   Duration{predictor.DefaultRemoteTimeout},
			CacheSize: DefaultModelCacheSize,
		},
		Generation: GenerationConfig{
			MaxSteps:   opts.MaxSteps,
			MaxRetries: opts.MaxRetries,
		},
		MetricsAddr: DefaultMetricsAddr,
		Verbosity:   logging.DEFAULT,
	}
}

// envToFlag maps environment variables onto flag names.
var envToFlag = map[string]string{
	"NAMEGEN_CONFIG":           "config",
	"NAMEGEN_CORPUS":           "corpus",
	"NAMEGEN_MODEL_KIND":       "model-kind",
	"NAMEGEN_MODEL_PATH":       "model-path",
	"NAMEGEN_MODEL_URL":        "model-url",
	"NAMEGEN_MODEL_TIMEOUT":    "model-timeout",
	"NAMEGEN_MODEL_CACHE_SIZE": "model-cache-size",
	"NAMEGEN_MAX_STEPS":        "max-steps",
	"NAMEGEN_MAX_RETRIES":      "max-retries",
	"NAMEGEN_RANDOM_SEED":      "random-seed",
	"NAMEGEN_TRACE":            "trace",
	"NAMEGEN_METRICS_ADDR":     "metrics-addr",
	"NAMEGEN_VERBOSITY":        "verbosity",
	"NAMEGEN_DEVELOPMENT":      "development",
}

// bindEnvToFlags sets every flag not given on the command line from its
// environment variable.
func bindEnvToFlags(fs *pflag.FlagSet, getenv func(string) string) error {
	var errs error
	for env, flg := range envToFlag {
		v := getenv(env)
		if v == "" || fs.Changed(flg) {
			continue
		}
		if err := fs.Set(flg, v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid %s=%q: %w", env, v, err))
		}
	}
	return errs
}

// loadConfig parses args and the environment into a validated Config. A
// pflag.ErrHelp error means usage was printed.
func loadConfig(args []string, getenv func(string) string) (*Config, error) {
	def := defaultConfig()

	fs := pflag.NewFlagSet("namegen", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML configuration file")
	corpusPath := fs.String("corpus", def.CorpusPath, "Path to the names corpus, one name per line")
	modelKind := fs.String("model-kind", def.Model.Kind, "Where predictions come from: artifact or remote")
	modelPath := fs.String("model-path", def.Model.Path, "Path to the model artifact (YAML or JSON)")
	modelURL := fs.String("model-url", def.Model.URL, "TensorFlow Serving predict URL, for model-kind remote")
	modelTimeout := fs.Duration("model-timeout", def.Model.Timeout.Duration, "Timeout of one remote prediction")
	cacheSize := fs.Int("model-cache-size", def.Model.CacheSize, "Number of prediction windows to cache, 0 disables caching")
	maxSteps := fs.Int("max-steps", def.Generation.MaxSteps, "Maximum characters sampled for one name")
	maxRetries := fs.Int("max-retries", def.Generation.MaxRetries, "Maximum regenerations when a name already exists")
	randomSeed := fs.Int64("random-seed", 0, "Seed for reproducible generation, unset uses the clock")
	trace := fs.Bool("trace", def.Generation.Trace, "Print how every character was sampled")
	metricsAddr := fs.String("metrics-addr", def.MetricsAddr, "Address of the metrics and health server, empty disables it")
	verbosity := fs.IntP("verbosity", "v", def.Verbosity, "number for the log level verbosity")
	development := fs.Bool("development", def.Development, "Human readable console logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := bindEnvToFlags(fs, getenv); err != nil {
		return nil, err
	}

	cfg := def
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", *configPath, err)
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "corpus":
			cfg.CorpusPath = *corpusPath
		case "model-kind":
			cfg.Model.Kind = *modelKind
		case "model-path":
			cfg.Model.Path = *modelPath
		case "model-url":
			cfg.Model.URL = *modelURL
		case "model-timeout":
			cfg.Model.Timeout = Duration{*modelTimeout}
		case "model-cache-size":
			cfg.Model.CacheSize = *cacheSize
		case "max-steps":
			cfg.Generation.MaxSteps = *maxSteps
		case "max-retries":
			cfg.Generation.MaxRetries = *maxRetries
		case "random-seed":
			seed := *randomSeed
			cfg.Generation.RandomSeed = &seed
		case "trace":
			cfg.Generation.Trace = *trace
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "verbosity":
			cfg.Verbosity = *verbosity
		case "development":
			cfg.Development = *development
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs error
	if strings.TrimSpace(c.CorpusPath) == "" {
		errs = multierr.Append(errs, errors.New("corpusPath is required"))
	}
	switch c.Model.Kind {
	case ModelKindArtifact:
		if c.Model.Path == "" {
			errs = multierr.Append(errs, errors.New("model.path is required for model kind artifact"))
		}
	case ModelKindRemote:
		if c.Model.URL == "" {
			errs = multierr.Append(errs, errors.New("model.url is required for model kind remote"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("model.kind must be %s or %s, got %q", ModelKindArtifact, ModelKindRemote, c.Model.Kind))
	}
	if c.Model.Timeout.Duration < 0 {
		errs = multierr.Append(errs, fmt.Errorf("model.timeout must not be negative, got %s", c.Model.Timeout))
	}
	if c.Model.CacheSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("model.cacheSize must not be negative, got %d", c.Model.CacheSize))
	}
	if c.Generation.MaxSteps < 1 {
		errs = multierr.Append(errs, fmt.Errorf("generation.maxSteps must be at least 1, got %d", c.Generation.MaxSteps))
	}
	if c.Generation.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("generation.maxRetries must not be negative, got %d", c.Generation.MaxRetries))
	}
	if c.Verbosity < 0 {
		errs = multierr.Append(errs, fmt.Errorf("verbosity must not be negative, got %d", c.Verbosity))
	}
	return errs
}

// generatorOptions converts the generation section.
func (c *Config) generatorOptions() generator.Options {
	return generator.Options{
		MaxSteps:   c.Generation.MaxSteps,
		MaxRetries: c.Generation.MaxRetries,
		Trace:      c.Generation.Trace,
	}
}
