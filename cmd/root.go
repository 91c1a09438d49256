// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with CERBERUS, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CERBERUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/cerberus", "$HOME/.cerberus", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "cerberus",
		Short: "The authorization and identity daemon for the real-time platform",
		Long: `The authorization and identity daemon for the real-time platform.

Cerberus answers user identification and stream subscription permission
requests arriving over the message stream transport, and relays presence
join/left events for tracked conversation streams.`,
	}
}
