package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/strata/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

var getTransport = func(baseURL BaseURLFunc) transports.StreamsTransport {
	return transports.NewHTTPTransport(baseURL, http.DefaultClient)
}

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream operations"}

	streamCmd.AddCommand(
		newStreamAppendCommand(baseURL),
		newStreamFetchCommand(baseURL),
		newStreamDescribeCommand(baseURL),
		newStreamListCommand(baseURL),
		newStreamWarmUpCommand(baseURL),
		newStreamTrimCommand(baseURL),
		newStreamDestroyCommand(baseURL),
	)

	return streamCmd
}

// newStreamAppendCommand constructs the `stream append` subcommand.
func newStreamAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append records to a stream, creating it on first use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			data, _ := cmd.Flags().GetStringArray("data")
			file, _ := cmd.Flags().GetString("file")
			hdrs, _ := cmd.Flags().GetStringArray("header")
			hdrJSON, _ := cmd.Flags().GetString("header-json")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			headers, err := parseHeaders(hdrs, hdrJSON)
			if err != nil {
				return err
			}
			recs := make([]transports.Record, 0, len(data)+1)
			for _, d := range data {
				recs = append(recs, transports.Record{Payload: []byte(d), Headers: headers})
			}
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				recs = append(recs, transports.Record{Payload: b, Headers: headers})
			}
			if len(recs) == 0 {
				return fmt.Errorf("nothing to append; use --data or --file")
			}
			res, err := getTransport(baseURL).Append(cmd.Context(), name, recs)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status: OK stream_id=%d base_offset=%d next_offset=%d\n", res.StreamID, res.BaseOffset, res.NextOffset)
			return nil
		},
	}
	appendCmd.Flags().String("name", "", "Stream name")
	appendCmd.Flags().StringArray("data", nil, "Record payload (repeatable)")
	appendCmd.Flags().String("file", "", "Append the contents of a file as one record")
	appendCmd.Flags().StringArray("header", nil, "Header key=value (repeatable)")
	appendCmd.Flags().String("header-json", "", "Headers as a JSON object")
	return appendCmd
}

// newStreamFetchCommand constructs the `stream fetch` subcommand.
func newStreamFetchCommand(baseURL BaseURLFunc) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch records from a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			start, _ := cmd.Flags().GetInt64("start")
			end, _ := cmd.Flags().GetInt64("end")
			maxBytes, _ := cmd.Flags().GetInt("max-bytes")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			res, err := getTransport(baseURL).Fetch(cmd.Context(), transports.FetchRequest{
				Name:     name,
				Start:    start,
				End:      end,
				MaxBytes: maxBytes,
				Filter:   filter,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for i, r := range res.Records {
				if limit > 0 && i >= limit {
					break
				}
				_ = enc.Encode(decodedRecord(r.Offset, r.Headers, r.Payload))
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "next_offset: %d\n", res.NextOffset)
			return nil
		},
	}
	fetchCmd.Flags().String("name", "", "Stream name")
	fetchCmd.Flags().Int64("start", 0, "Start offset")
	fetchCmd.Flags().Int64("end", 0, "End offset, exclusive (0 = confirm offset)")
	fetchCmd.Flags().Int("max-bytes", 0, "Max bytes hint (0 = server default)")
	fetchCmd.Flags().String("filter", "", "CEL filter (server-side)")
	fetchCmd.Flags().Int("limit", 0, "Print at most N records (0 = all)")
	return fetchCmd
}

// newStreamDescribeCommand constructs the `stream describe` subcommand.
func newStreamDescribeCommand(baseURL BaseURLFunc) *cobra.Command {
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Show catalog and storage state of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			info, err := getTransport(baseURL).Describe(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	describeCmd.Flags().String("name", "", "Stream name")
	return describeCmd
}

// newStreamListCommand constructs the `stream list` subcommand.
func newStreamListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			out, err := getTransport(baseURL).List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	listCmd.Flags().String("prefix", "", "Name prefix")
	return listCmd
}

// newStreamWarmUpCommand constructs the `stream warmup` subcommand.
func newStreamWarmUpCommand(baseURL BaseURLFunc) *cobra.Command {
	warmCmd := &cobra.Command{
		Use:   "warmup",
		Short: "Create the stream now instead of on first append",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			info, err := getTransport(baseURL).WarmUp(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	warmCmd.Flags().String("name", "", "Stream name")
	return warmCmd
}

// newStreamTrimCommand constructs the `stream trim` subcommand.
func newStreamTrimCommand(baseURL BaseURLFunc) *cobra.Command {
	trimCmd := &cobra.Command{
		Use:   "trim",
		Short: "Drop records below an offset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			start, _ := cmd.Flags().GetInt64("start-offset")
			info, err := getTransport(baseURL).Trim(cmd.Context(), name, start)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	trimCmd.Flags().String("name", "", "Stream name")
	trimCmd.Flags().Int64("start-offset", 0, "New start offset")
	return trimCmd
}

// newStreamDestroyCommand constructs the `stream destroy` subcommand.
func newStreamDestroyCommand(baseURL BaseURLFunc) *cobra.Command {
	destroyCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete a stream and all of its records (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to destroy %q without --confirm", name)
			}
			if err := getTransport(baseURL).Destroy(cmd.Context(), name); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	destroyCmd.Flags().String("name", "", "Stream name")
	destroyCmd.Flags().Bool("confirm", false, "Confirm destruction")
	return destroyCmd
}
