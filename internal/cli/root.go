// Package cli is the terminal client: cobra commands, the viper-backed
// client config and a console rendering of a session.
package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hush",
	Short: "Ephemeral end-to-end encrypted group chat with a mesh call",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := InitConfig(configFile); err != nil {
			return err
		}
		level := zerolog.WarnLevel
		if viper.GetBool("debug") {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultFile := "hush.toml"
	if dir, err := ConfigDir(); err == nil {
		defaultFile = filepath.Join(dir, "hush.toml")
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultFile, "config file")
	rootCmd.PersistentFlags().String("server", "", "relay WebSocket URL")
	rootCmd.PersistentFlags().Bool("debug", false, "print debugging information")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
