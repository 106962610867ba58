package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sightline/sightline/cmd/util"
	"github.com/sightline/sightline/pkg/graph"
	"github.com/sightline/sightline/pkg/logger"
	"github.com/sightline/sightline/pkg/storage/elastic"
)

const initTimeoutFlag = "timeout"

// NewInitCommand returns the command that verifies engine reachability
// and creates the store's indices with their fixed schema.
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Verify the search engine is reachable and create the store indices",
		RunE:  runInit,
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			util.MustBindPFlag(engineAddressesFlag, flags.Lookup(engineAddressesFlag))
			util.MustBindPFlag(engineUsernameFlag, flags.Lookup(engineUsernameFlag))
			util.MustBindPFlag(enginePasswordFlag, flags.Lookup(enginePasswordFlag))
			util.MustBindPFlag(logLevelFlag, flags.Lookup(logLevelFlag))
			util.MustBindPFlag(logFormatFlag, flags.Lookup(logFormatFlag))
			util.MustBindPFlag(initTimeoutFlag, flags.Lookup(initTimeoutFlag))
			// Accept the engine's conventional env names alongside the
			// SIGHTLINE_ prefixed ones.
			util.MustBindEnv(engineAddressesFlag, "ELASTICSEARCH_URL")
			util.MustBindEnv(engineUsernameFlag, "ELASTICSEARCH_USERNAME")
			util.MustBindEnv(enginePasswordFlag, "ELASTICSEARCH_PASSWORD")
		},
	}

	flags := cmd.Flags()
	flags.StringSlice(engineAddressesFlag, []string{"http://localhost:9200"}, "the search engine node addresses")
	flags.String(engineUsernameFlag, "", "the search engine username")
	flags.String(enginePasswordFlag, "", "the search engine password")
	flags.String(logLevelFlag, "info", "the log level (debug, info, warn, error, none)")
	flags.String(logFormatFlag, "text", "the log format (text, json)")
	flags.Duration(initTimeoutFlag, 1*time.Minute, "a timeout after which initialization terminates")

	return cmd
}

func runInit(_ *cobra.Command, _ []string) error {
	log, err := logger.NewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag))
	if err != nil {
		return err
	}

	engine, err := elastic.New(elastic.Config{
		Addresses: viper.GetStringSlice(engineAddressesFlag),
		Username:  viper.GetString(engineUsernameFlag),
		Password:  viper.GetString(enginePasswordFlag),
	}, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration(initTimeoutFlag))
	defer cancel()

	store := graph.New(engine, graph.WithLogger(log))
	if _, err := store.Health(ctx); err != nil {
		return err
	}
	if err := store.EnsureIndices(ctx); err != nil {
		return err
	}
	log.Info("store initialized", zap.Strings("indices", graph.Indices()))
	return nil
}
