// Package config loads the edgestat settings from a YAML file, with
// environment variables taking precedence.
package config

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/edgerdd"
)

type Config struct {
	Threads                  int    `yaml:"threads"`
	CachedPartitionsMaxMemMB int    `yaml:"cached_partitions_max_mem_mb"`
	DataDir                  string `yaml:"data_dir"`
	UnorderedDataDir         string `yaml:"unordered_data_dir"`
	NumPartitions            int    `yaml:"num_partitions"`
	PartitionStrategy        string `yaml:"partition_strategy"`
	StorageLevel             string `yaml:"storage_level"`
	Log                      Log    `yaml:"log"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Threads:                  runtime.NumCPU(),
		CachedPartitionsMaxMemMB: 1 * 1024,
		DataDir:                  "data",
		UnorderedDataDir:         "unordered-data",
		NumPartitions:            runtime.NumCPU(),
		PartitionStrategy:        edgerdd.EdgePartition2D{}.Name(),
		StorageLevel:             dataflow.MemoryOnly.String(),
		Log:                      Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies the EDGERDD_* environment
// variables and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Annotatef(err, "failed to parse config file %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Threads = getNumericEnv("EDGERDD_THREADS", c.Threads)
	c.CachedPartitionsMaxMemMB = getNumericEnv("EDGERDD_CACHED_PARTITIONS_MAX_MEM_MB", c.CachedPartitionsMaxMemMB)
	c.NumPartitions = getNumericEnv("EDGERDD_NUM_PARTITIONS", c.NumPartitions)
	c.DataDir = getEnv("EDGERDD_DATA_DIR", c.DataDir)
	c.UnorderedDataDir = getEnv("EDGERDD_UNORDERED_DATA_DIR", c.UnorderedDataDir)
	c.PartitionStrategy = getEnv("EDGERDD_PARTITION_STRATEGY", c.PartitionStrategy)
	c.StorageLevel = getEnv("EDGERDD_STORAGE_LEVEL", c.StorageLevel)
	c.Log.Level = getEnv("EDGERDD_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("EDGERDD_LOG_FORMAT", c.Log.Format)
}

func (c *Config) Validate() error {
	if c.Threads < 1 {
		return errors.NotValidf("threads %d", c.Threads)
	}
	if c.CachedPartitionsMaxMemMB < 0 {
		return errors.NotValidf("cached_partitions_max_mem_mb %d", c.CachedPartitionsMaxMemMB)
	}
	if c.NumPartitions < 1 {
		return errors.NotValidf("num_partitions %d", c.NumPartitions)
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.NotValidf("log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) Strategy() (edgerdd.PartitionStrategy, error) {
	return edgerdd.StrategyFromString(c.PartitionStrategy)
}

func (c *Config) Level() (dataflow.StorageLevel, error) {
	return dataflow.ParseStorageLevel(c.StorageLevel)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, errors.NotValidf("log level %q", c.Log.Level)
	}
	return l, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) EngineOptions(logger *slog.Logger) []dataflow.Option {
	return []dataflow.Option{
		dataflow.WithParallelism(c.Threads),
		dataflow.WithCacheMaxMem(c.CachedPartitionsMaxMemMB * 1024 * 1024),
		dataflow.WithLogger(logger),
	}
}

func getNumericEnv(key string, dflt int) int {
	s, exists := os.LookupEnv(key)
	if exists {
		v, _ := strconv.ParseInt(s, 10, 64)
		return int(v)
	}
	return dflt
}

func getEnv(key, dflt string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return dflt
}
