package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hive-corporation/iocscope/internal/adapter/handler"
	"github.com/hive-corporation/iocscope/internal/core/domain"
)

var lookupFlags struct {
	server  string
	file    string
	timeout time.Duration
	json    bool
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [text...]",
	Short: "Look indicators up on an iocscope gRPC server",
	RunE:  runLookup,
}

func init() {
	f := lookupCmd.Flags()
	f.StringVar(&lookupFlags.server, "server", "localhost:50051", "iocscope gRPC server address")
	f.StringVarP(&lookupFlags.file, "file", "f", "", "Read text from file instead of arguments or stdin")
	f.DurationVar(&lookupFlags.timeout, "timeout", 90*time.Second, "Deadline for the whole lookup")
	f.BoolVar(&lookupFlags.json, "json", false, "Print the raw JSON response")
}

// lookupResult mirrors one entry of the server's lookup response.
type lookupResult struct {
	Indicator   string                           `json:"ioc"`
	Type        domain.IndicatorType             `json:"type"`
	WasDefanged bool                             `json:"was_defanged"`
	Sources     map[domain.SourceName]sourceView `json:"sources"`
	Summary     domain.Summary                   `json:"summary"`
}

type sourceView struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type lookupReply struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Results []lookupResult `json:"results"`
}

func runLookup(cmd *cobra.Command, args []string) error {
	text, err := readInput(args, lookupFlags.file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(lookupFlags.server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", lookupFlags.server, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), lookupFlags.timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	if lookupFlags.json {
		var raw json.RawMessage
		if err := handler.NewLookupClient(conn).Lookup(ctx, text, &raw); err != nil {
			return fmt.Errorf("lookup failed: %w", err)
		}
		_, err := fmt.Fprintln(out, string(raw))
		return err
	}

	spinner, _ := pterm.DefaultSpinner.WithWriter(cmd.ErrOrStderr()).Start("Querying threat-intel sources...")
	var reply lookupReply
	err = handler.NewLookupClient(conn).Lookup(ctx, text, &reply)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	flagged := 0
	for _, result := range reply.Results {
		report, err := renderResult(result)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report)
		if result.Summary.Flagged > 0 {
			flagged++
		}
	}

	fmt.Fprintln(out, "------------------------------------------------")
	fmt.Fprintf(out, "%s: %d of %d indicators flagged by at least one source\n", reply.Message, flagged, len(reply.Results))
	return nil
}
