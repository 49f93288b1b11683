package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
)

const (
	JSONContentType = "application/json"

	defaultBaseURL        = "http://localhost:8000"
	defaultAppBaseURL     = "/"
	defaultBuildAssetsDir = "/_nuxt/"
	defaultDBPath         = "apiclient.db"
)

// Environment variables read by NewConfig.
const (
	EnvAPIEndpoint       = "API_ENDPOINT"
	EnvAppBaseURL        = "NUXT_APP_BASE_URL"
	EnvAppBuildAssetsDir = "NUXT_APP_BUILD_ASSETS_DIR"
	EnvAppCDNURL         = "NUXT_APP_CDN_URL"
	EnvDBPath            = "API_CLIENT_DB"
)

// AppConfig mirrors the app section of the web front end's runtime config.
type AppConfig struct {
	BaseURL        string `json:"baseURL"`
	BuildAssetsDir string `json:"buildAssetsDir"`
	CDNURL         string `json:"cdnURL"`
}

type RuntimeConfig struct {
	App AppConfig `json:"app"`
}

type Config struct {
	BaseURL string
	Headers http.Header
	Runtime RuntimeConfig
	DBPath  string
}

// NewConfig resolves the configuration through lookup. Empty values count as unset.
func NewConfig(lookup func(string) (string, bool)) *Config {
	headers := make(http.Header)
	headers.Set("Content-Type", JSONContentType)

	return &Config{
		BaseURL: valueOr(lookup, EnvAPIEndpoint, defaultBaseURL),
		Headers: headers,
		Runtime: RuntimeConfig{
			App: AppConfig{
				BaseURL:        valueOr(lookup, EnvAppBaseURL, defaultAppBaseURL),
				BuildAssetsDir: valueOr(lookup, EnvAppBuildAssetsDir, defaultBuildAssetsDir),
				CDNURL:         valueOr(lookup, EnvAppCDNURL, ""),
			},
		},
		DBPath: valueOr(lookup, EnvDBPath, defaultDBPath),
	}
}

// FromEnv resolves the configuration from the process environment.
func FromEnv() *Config {
	return NewConfig(os.LookupEnv)
}

// LoadDotEnv loads the given env files (".env" when none are given) into the
// process environment. Variables that are already set are left untouched.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("env file not found", slog.String("file", file))
				continue
			}
			slog.Error("Failed to load env file", "file", file, "error", err)
			return err
		}
	}
	return nil
}

func valueOr(lookup func(string) (string, bool), key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}
