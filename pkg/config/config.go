package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	envFilePath string
	parseOnce   sync.Once
)

// MustNew loads a typed config struct from the environment, panicking on
// failure. Use at process startup only.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads a typed config struct from the environment. An env file given
// with the -env flag (or a ./.env when one exists) is exported into the
// process environment first, then envconfig fills the struct.
func New[T any](prefix string) (*T, error) {
	if path := envFile(); path != "" {
		if err := exportEnvFile(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// envFile picks the env file to load: the -env flag wins; otherwise ./.env
// is used when present.
func envFile() string {
	parseOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFilePath, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})

	if flagged := strings.TrimSpace(envFilePath); flagged != "" {
		return flagged
	}
	if info, err := os.Stat(".env"); err == nil && !info.IsDir() {
		return ".env"
	}
	return ""
}

// exportEnvFile reads path and exports its keys into the process
// environment. envFile only hands over paths that exist, so a read failure
// here is a real problem with the file and is surfaced, never swallowed.
func exportEnvFile(path string) error {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return err
	}

	for k, v := range viper.AllSettings() {
		if err := os.Setenv(strings.ToUpper(k), fmt.Sprint(v)); err != nil {
			return err
		}
	}
	return nil
}
