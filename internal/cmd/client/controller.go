package client

import (
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/strata/internal/cmd/client/transports"
	"github.com/rzbill/strata/internal/protocol"
)

var getHealthChecker = func() transports.HealthChecker {
	return transports.NewGrpcTransport(dialGRPCContext)
}

// NewControllerCommand constructs the `controller` command group.
func NewControllerCommand(baseURL BaseURLFunc) *cobra.Command {
	ctrlCmd := &cobra.Command{Use: "controller", Short: "Controller operations"}
	ctrlCmd.AddCommand(
		newBreakerStatusCommand(baseURL),
		newHealthCommand(),
		newUpdateGroupCommand(baseURL),
	)
	return ctrlCmd
}

// newBreakerStatusCommand constructs the `controller breaker` subcommand.
func newBreakerStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "breaker",
		Short: "Show the stream creation breaker state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := getTransport(baseURL).BreakerStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// newHealthCommand constructs the `controller health` subcommand.
func newHealthCommand() *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check gRPC health (empty service = overall)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			status, err := getHealthChecker().Check(cmd.Context(), service)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			return nil
		},
	}
	healthCmd.Flags().String("service", "strata.controller", "Health service name")
	return healthCmd
}

// newUpdateGroupCommand constructs the `controller update-group` subcommand.
func newUpdateGroupCommand(baseURL BaseURLFunc) *cobra.Command {
	ugCmd := &cobra.Command{
		Use:   "update-group",
		Short: "Send an UpdateGroup request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, _ := cmd.Flags().GetString("group")
			link, _ := cmd.Flags().GetString("link")
			promoted, _ := cmd.Flags().GetBool("promoted")
			version, _ := cmd.Flags().GetInt16("api-version")

			b := protocol.NewUpdateGroupRequestBuilder(protocol.UpdateGroupRequestData{
				GroupID:  group,
				LinkID:   link,
				Promoted: promoted,
			})
			req, err := b.Build(version)
			if err != nil {
				return err
			}
			raw, err := req.Encode()
			if err != nil {
				return err
			}
			out, sendErr := getTransport(baseURL).UpdateGroup(cmd.Context(), raw, version)
			if len(out) == 0 && sendErr != nil {
				return sendErr
			}
			resp, err := protocol.ParseUpdateGroupResponse(out)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s error_code=%s throttle_time_ms=%d\n", b, resp.ErrorCode, resp.ThrottleTimeMs)
			if resp.ErrorCode != protocol.CodeNone {
				return fmt.Errorf("update group failed: %s", resp.ErrorCode)
			}
			return nil
		},
	}
	ugCmd.Flags().String("group", "", "Group id")
	ugCmd.Flags().String("link", "", "Link id")
	ugCmd.Flags().Bool("promoted", false, "Mark the group promoted (version 1+)")
	ugCmd.Flags().Int16("api-version", protocol.MaxVersion, "Protocol version")
	return ugCmd
}
