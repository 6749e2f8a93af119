// Package cli implements txctl, the operator CLI for talking to a running
// transcription orchestrator: submit a file, poll status, fetch a result.
// Adapted from the teacher's cobra/viper scaffold (internal/cli), trimmed
// of the account/login/watch-folder-service subcommands that have no
// SPEC_FULL component.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds the CLI's own configuration (server address), separate from
// the orchestrator process's own config package.
type Config struct {
	ServerURL string `mapstructure:"server_url"`
}

// InitConfig initializes viper from ~/.txctl.yaml and the environment.
func InitConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".txctl")
	viper.SetDefault("server_url", "http://localhost:8080")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// GetConfig returns the current CLI configuration.
func GetConfig() *Config {
	return &Config{ServerURL: viper.GetString("server_url")}
}
