// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	engineAddressesFlag = "engine-addresses"
	engineUsernameFlag  = "engine-username"
	enginePasswordFlag  = "engine-password"
	logLevelFlag        = "log-level"
	logFormatFlag       = "log-format"
)

// NewRootCommand enables all children commands to read flags from CLI
// flags, environment variables prefixed with SIGHTLINE, or config.yaml
// (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("SIGHTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/sightline", "$HOME/.sightline", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:   "sightline",
		Short: "A graph-relationship store built on a document search engine",
		Long: `Sightline persists a densely interconnected knowledge graph (entities and
typed relationships) inside a document search engine, enforcing
classification-marking access control on every read, denormalizing
relationship references for fast traversal, and cascading deletes
safely through relationship graphs.`,
	}
}
