// Package config provides configuration loading, defaults, and validation for
// hmd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/hmd/pkg/errors"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "HMD"

// envKeys lists the keys bound to HMD_* variables.  Viper only resolves
// AutomaticEnv for keys it already knows, so keys that may be absent from the
// file are bound explicitly.
var envKeys = []string{
	"generator.formula", "generator.workers",
	"output.dir", "output.file_name",
	"dedup.backend",
	"redis.addr", "redis.password", "redis.db", "redis.pool_size", "redis.key_prefix", "redis.key_ttl",
	"kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.batch_size", "kafka.required_acks", "kafka.compression",
	"postgres.enabled", "postgres.host", "postgres.port", "postgres.user", "postgres.password",
	"postgres.db_name", "postgres.ssl_mode", "postgres.max_conns",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.use_ssl",
	"minio.region", "minio.bucket", "minio.object_prefix",
	"metrics.enabled", "metrics.namespace", "metrics.textfile_path", "metrics.pushgateway_url", "metrics.job_name",
	"metrics.listen_addr",
	"log.level", "log.format",
}

// DefaultSearchPaths are tried in order when no explicit config path is set.
func DefaultSearchPaths() []string {
	paths := []string{"hmd.yaml", filepath.Join("configs", "hmd.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".hmd", "config.yaml"))
	}
	return paths
}

// newViper builds a Viper instance with YAML file type, HMD_ env prefix,
// automatic env binding and a "." → "_" key replacer, so that
// "redis.addr" resolves to HMD_REDIS_ADDR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges HMD_* overrides, applies
// defaults and validates the result.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigMissing, "config: file not found").
			WithDetail(configPath)
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "config: failed to read config file").
			WithDetail(configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from HMD_* environment variables and defaults
// only:
//
//	HMD_<SECTION>_<FIELD>   e.g.  HMD_GENERATOR_WORKERS, HMD_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// Resolve loads configPath when set, otherwise the first existing file among
// DefaultSearchPaths, otherwise the environment alone.
func Resolve(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return LoadFromEnv()
}

// unmarshalAndFinalize unmarshals viper state into a Config, applies defaults
// and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "config: failed to unmarshal configuration")
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "config: validation failed")
	}
	return cfg, nil
}

// MustLoad wraps Load and panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
