package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEMSEARCH_"

// envSource resolves variables from the process environment first and a
// .env file second. The .env file never modifies the process environment.
type envSource struct {
	dotenv map[string]string
}

func newEnvSource(dotenvPath string) (*envSource, error) {
	src := &envSource{dotenv: map[string]string{}}
	if !fileExists(dotenvPath) {
		return src, nil
	}
	values, err := godotenv.Read(dotenvPath)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse %s", dotenvPath), err)
	}
	src.dotenv = values
	return src, nil
}

func (s *envSource) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := s.dotenv[key]
	return v, ok && v != ""
}

// applyEnv applies SEMSEARCH_* overrides. A value that does not parse is a
// configuration error.
func (c *Config) applyEnv(env *envSource) error {
	str := func(name string, dst *string) {
		if v, ok := env.lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := env.lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError(name, v, err)
		}
		*dst = n
		return nil
	}
	float := func(name string, dst *float64) error {
		v, ok := env.lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = f
		return nil
	}
	boolean := func(name string, dst *bool) error {
		v, ok := env.lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return envError(name, v, err)
		}
		*dst = b
		return nil
	}

	str("DB_PATH", &c.Store.Path)
	str("METRIC", &c.Store.Metric)
	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	str("OLLAMA_HOST", &c.Embeddings.OllamaHost)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Server.LogLevel)

	if v, ok := env.lookup(EnvPrefix + "EXTENSIONS"); ok {
		c.Index.Extensions = splitList(v)
	}
	if v, ok := env.lookup(EnvPrefix + "EXCLUDE_DIRS"); ok {
		c.Index.ExcludeDirs = splitList(v)
	}
	if v, ok := env.lookup(EnvPrefix + "IGNORE_FILES"); ok {
		c.Index.IgnoreFiles = splitList(v)
	}
	if v, ok := env.lookup(EnvPrefix + "EMBEDDINGS_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return envError("EMBEDDINGS_TIMEOUT", v, err)
		}
		c.Embeddings.Timeout = d
	}

	for _, set := range []func() error{
		func() error { return integer("CHUNK_SIZE", &c.Chunk.Size) },
		func() error { return integer("CHUNK_OVERLAP", &c.Chunk.Overlap) },
		func() error { return integer("BATCH_SIZE", &c.Embeddings.BatchSize) },
		func() error { return integer("TOP_K", &c.Search.TopK) },
		func() error { return float("THRESHOLD", &c.Search.Threshold) },
		func() error { return float("CLI_THRESHOLD", &c.Search.CLIThreshold) },
		func() error { return boolean("PDF", &c.Parse.PDF) },
		func() error { return boolean("EMBEDDINGS_CACHE", &c.Embeddings.Cache) },
	} {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

func envError(name, value string, cause error) error {
	return errors.ConfigError(fmt.Sprintf("invalid %s%s=%q", EnvPrefix, name, value), cause)
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
