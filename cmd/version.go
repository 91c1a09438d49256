package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/establishment/cerberus/internal/build"
)

// NewVersionCommand returns the command to get the cerberus version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the Cerberus version",
		Long:  "Return the Cerberus version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("Cerberus Version %s Date %s commit id %s ", build.Version, build.Date, build.Commit)
	return nil
}
