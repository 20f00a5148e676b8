package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lapboard/pkg/ocr"
)

const envPrefix = "LAPBOARD"

// Config holds the resolved settings shared by all commands.
type Config struct {
	DSN            string
	AutoMigrate    bool
	Listen         string
	UploadBase     string
	PublicURL      string
	MaxUploadBytes int64
	MaxImagePixels int
	OCRLanguages   []string
	NumericRanking bool
	LogLevel       string
	LogFormat      string
	InboxDir       string
	Workers        int
}

// legacyEnv maps config keys to the unprefixed variables older deployments use.
var legacyEnv = map[string]string{
	"db-dsn":          "DB_DSN",
	"db-auto-migrate": "DB_AUTO_MIGRATE",
	"upload-base":     "UPLOAD_BASE",
	"public-url":      "PUBLIC_BASE_URL",
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("db-dsn", "", "Postgres connection string")
	fs.Bool("db-auto-migrate", true, "run schema migration on startup")
	fs.String("listen", ":5000", "HTTP listen address")
	fs.String("upload-base", "uploads", "directory for uploaded screenshots")
	fs.String("public-url", "http://localhost:5000/public", "public URL prefix of the upload directory")
	fs.Int64("max-upload-mb", 10, "maximum accepted upload size in MiB")
	fs.Int("max-image-pixels", ocr.DefaultMaxPixels, "maximum declared width*height of an accepted image")
	fs.StringSlice("ocr-languages", []string{"kor", "eng"}, "Tesseract languages")
	fs.Bool("ranking-numeric", false, "rank by elapsed time instead of lap_time string order")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("inbox-dir", "inbox", "directory watched by the watch command")
	fs.Int("workers", 2, "concurrent OCR workers for the watch command")
}

// newViper binds flags, LAPBOARD_* variables, the legacy variables and an
// optional config file.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

func configFrom(v *viper.Viper) (Config, error) {
	cfg := Config{
		DSN:            v.GetString("db-dsn"),
		AutoMigrate:    v.GetBool("db-auto-migrate"),
		Listen:         v.GetString("listen"),
		UploadBase:     v.GetString("upload-base"),
		PublicURL:      v.GetString("public-url"),
		MaxUploadBytes: v.GetInt64("max-upload-mb") << 20,
		MaxImagePixels: v.GetInt("max-image-pixels"),
		OCRLanguages:   v.GetStringSlice("ocr-languages"),
		NumericRanking: v.GetBool("ranking-numeric"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		InboxDir:       v.GetString("inbox-dir"),
		Workers:        v.GetInt("workers"),
	}
	if cfg.MaxUploadBytes <= 0 {
		return cfg, fmt.Errorf("max-upload-mb must be positive")
	}
	if cfg.MaxImagePixels <= 0 {
		return cfg, fmt.Errorf("max-image-pixels must be positive")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// loadDotEnv exports key=value pairs from path without overwriting variables
// that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); !exists {
			_ = os.Setenv(name, v.GetString(key))
		}
	}
	return nil
}
