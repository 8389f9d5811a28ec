package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local then .env into the process environment
// (earlier files win, matching godotenv.Load's first-value-wins semantics)
// before Load reads WIKIQ_* overrides. Missing files are not an error; a
// malformed one is. Grounded on the teacher's pkg/config/env.go::LoadEnvFiles.
func LoadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// envTransform turns WIKIQ_EMBEDDER__BASE_URL into "embedder.base_url":
// the WIKIQ_ prefix is stripped, the result lowercased, and "__" (double
// underscore) marks a nesting boundary so single underscores survive
// inside a field name like base_url or api_key.
//
// Grounded on the teacher's pkg/config/env.go env-var-expansion pass,
// simplified from regex-driven ${VAR:-default} substitution (this engine
// has no YAML-embedded variable references, only whole-value overrides)
// to koanf's env.ProviderWithValue transform hook.
func envTransform(key, value string) (string, interface{}) {
	key = strings.TrimPrefix(strings.ToLower(key), "wikiq_")
	key = strings.ReplaceAll(key, "__", ".")
	return key, value
}
