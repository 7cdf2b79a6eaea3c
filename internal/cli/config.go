package cli

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

//go:embed hush.toml
var defaultConfigFile []byte

// InitConfig loads file into the global viper instance. A missing file is
// created from the embedded default.
func InitConfig(file string) error {
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("hush")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigFile(file)

	if _, err := os.Stat(file); err != nil {
		if err := viper.ReadConfig(bytes.NewReader(defaultConfigFile)); err != nil {
			return fmt.Errorf("read embedded config: %w", err)
		}
		log.Info().Str("module", "cli").Str("file", file).Msg("writing default config")
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("could not persist default config")
		}
		return nil
	}
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

// ConfigDir is $XDG_CONFIG_HOME/hush, with ~/.config used on macOS too.
func ConfigDir() (string, error) {
	base := xdg.ConfigHome
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "hush")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", dir, err)
	}
	return dir, nil
}
