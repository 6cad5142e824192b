package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables read for NCBI credentials.
const (
	EnvAPIKey       = "NCBI_API_KEY"
	EnvAPIKeyLegacy = "API_KEY"
	EnvEmail        = "NCBI_EMAIL"
	EnvTool         = "NCBI_TOOL"
)

// LoadDotEnv loads .env files from the working directory and each of dirs.
// Missing files are skipped and variables already set are not overridden.
func LoadDotEnv(dirs ...string) []string {
	candidates := []string{".env"}
	for _, d := range dirs {
		if d != "" {
			candidates = append(candidates, filepath.Join(d, ".env"))
		}
	}

	var loaded []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}

// ApplyEnv fills empty credentials from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.APIKey == "" {
		c.APIKey = getenv(EnvAPIKey)
	}
	if c.APIKey == "" {
		c.APIKey = getenv(EnvAPIKeyLegacy)
	}
	if c.Email == "" {
		c.Email = getenv(EnvEmail)
	}
	if c.Tool == "" {
		c.Tool = getenv(EnvTool)
	}
}
