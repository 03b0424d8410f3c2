package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"docket/internal/resolve"
	dErrors "docket/pkg/domain-errors"
)

func newResolvePromptCmd(opts *rootOptions) *cobra.Command {
	var (
		vars     []string
		workflow string
		options  resolve.Options
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "resolve-prompt <file|->",
		Short: "Expand the references in a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template, err := readTemplate(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(vars)
			if err != nil {
				return err
			}
			a := opts.app
			if workflow != "" {
				if !a.planner.Has(workflow) {
					return dErrors.Newf(dErrors.CodeNotFound, "unknown workflow %q", workflow)
				}
				values = a.planner.Plan(workflow, values)
			}
			result, err := a.engine.Resolve(cmd.Context(), template, values, options)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", w.Reference, w.Message)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), result.Text)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable name=value (repeatable)")
	cmd.Flags().StringVar(&workflow, "workflow", "", "auto-inject the references configured for this workflow")
	cmd.Flags().IntVar(&options.MaxDepth, "max-depth", 0, "nesting limit (0 for the configured default)")
	cmd.Flags().BoolVar(&options.Strict, "strict", false, "fail if unresolved references remain")
	cmd.Flags().BoolVar(&options.Lenient, "lenient", false, "replace failing references with empty text and warn")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.MarkFlagsMutuallyExclusive("strict", "lenient")
	return cmd
}

func readTemplate(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeContentIO, "read template")
	}
	return string(data), nil
}
