package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the strata client.
// It registers the stream and controller command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "strata",
		Short: "strata client commands",
	}
	root.AddCommand(NewStreamCommand(baseURL))
	root.AddCommand(NewControllerCommand(baseURL))
	return root
}
