package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docket/internal/platform/config"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/requestcontext"
)

type rootOptions struct {
	configPath string
	actor      string

	// app is built once flags are parsed, before any command runs.
	app *app
}

// run executes the CLI and always releases what the command opened, so
// queued lifecycle events are flushed even when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if opts.app != nil {
		if cerr := opts.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docket",
		Short:         "Track project documents and resolve prompt references",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeValidation, "load config")
			}
			ctx := cmd.Context()
			opts.app, err = newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx = requestcontext.WithActor(ctx, opts.actor)
			ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $DOCKET_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", requestcontext.DefaultActor, "actor recorded in the audit log")

	cmd.AddCommand(
		newServeCmd(opts),
		newRegisterCmd(opts),
		newGetCmd(opts),
		newTransitionCmd(opts),
		newArchiveCmd(opts),
		newLinkCmd(opts),
		newLineageCmd(opts),
		newSearchCmd(opts),
		newSweepCmd(opts),
		newHealthCmd(opts),
		newResolvePromptCmd(opts),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAssignments turns repeated key=value flags into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, dErrors.Newf(dErrors.CodeValidation, "expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func usageError(format string, args ...any) error {
	return dErrors.Newf(dErrors.CodeValidation, format, args...)
}
