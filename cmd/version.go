package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sightline/sightline/internal/build"
)

// NewVersionCommand returns the command to get the sightline version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Return the Sightline version",
		RunE:  version,
		Args:  cobra.NoArgs,
	}
}

func version(_ *cobra.Command, _ []string) error {
	log.Printf("Sightline Version %s Date %s commit id %s", build.Version, build.Date, build.Commit)
	return nil
}
