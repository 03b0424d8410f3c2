package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		req    models.RegisterRequest
		state  string
		meta   []string
		review string
	)
	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Start tracking a document that exists under the content root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Path = args[0]
			req.State = models.State(state)
			if len(meta) > 0 {
				pairs, err := parseAssignments(meta)
				if err != nil {
					return err
				}
				req.Metadata = make(map[string]any, len(pairs))
				for k, v := range pairs {
					req.Metadata[k] = v
				}
			}
			if review != "" {
				due, err := time.Parse(time.RFC3339, review)
				if err != nil {
					return usageError("--review-due must be RFC3339: %v", err)
				}
				due = due.UTC()
				req.ReviewDueAt = &due
			}
			doc, err := opts.app.documents.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", "", "document type")
	cmd.Flags().StringVar(&state, "state", "", "initial state: draft (default) or active")
	cmd.Flags().StringVar(&req.Owner, "owner", "", "owner")
	cmd.Flags().StringVar(&req.Reviewer, "reviewer", "", "reviewer")
	cmd.Flags().StringVar(&req.Retention, "retention", "", "retention policy name")
	cmd.Flags().StringVar(&review, "review-due", "", "review due time (RFC3339)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var withContent bool
	cmd := &cobra.Command{
		Use:   "get <path|id>",
		Short: "Show a document's catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := opts.app.documents.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !withContent {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			data, err := opts.app.documents.ReadContent(ctx, doc)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&withContent, "content", false, "print the document content instead")
	return cmd
}

func newTransitionCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "transition <path|id> <state>",
		Short: "Move a document to another lifecycle state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := models.ParseState(args[1])
			if err != nil {
				return err
			}
			doc, err := opts.app.documents.Get(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err = opts.app.documents.Transition(ctx, doc.ID, target, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	return cmd
}

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "archive <path|id>",
		Short: "Archive a document and move its content under the archive root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := opts.app.documents.Get(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err = opts.app.documents.Archive(ctx, doc.ID, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	return cmd
}

func newLinkCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "link <from> <to>",
		Short: "Record a relationship between two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, err := opts.app.documents.Get(ctx, args[0])
			if err != nil {
				return err
			}
			to, err := opts.app.documents.Get(ctx, args[1])
			if err != nil {
				return err
			}
			rel, err := opts.app.documents.Link(ctx, from.ID, to.ID, kind)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rel)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "relationship kind (default derived-from)")
	return cmd
}

func newLineageCmd(opts *rootOptions) *cobra.Command {
	var req models.LineageRequest
	var direction string
	cmd := &cobra.Command{
		Use:   "lineage <path|id>",
		Short: "Walk a document's relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := opts.app.documents.Get(ctx, args[0])
			if err != nil {
				return err
			}
			req.Direction = models.Direction(direction)
			lineage, err := opts.app.documents.Lineage(ctx, doc.ID, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lineage)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "both", "ancestors, descendants or both")
	cmd.Flags().IntVar(&req.MaxDepth, "depth", 0, "maximum walk depth (0 for the default)")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		f      models.Filter
		types  []string
		states []string
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Query the catalog, ranked by relevance when text is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Text = args[0]
			}
			f.Types = types
			for _, raw := range states {
				state, err := models.ParseState(strings.TrimSpace(raw))
				if err != nil {
					return err
				}
				f.States = append(f.States, state)
			}
			page, err := opts.app.documents.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "document types")
	cmd.Flags().StringSliceVar(&states, "state", nil, "lifecycle states")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag")
	cmd.Flags().IntVar(&f.Limit, "limit", models.DefaultQueryLimit, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var req models.SweepRequest
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply retention policies: archive stale documents, delete expired content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := opts.app.documents.Sweep(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "report what would change without changing it")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the catalog store and content root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health := opts.app.documents.Health(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), health); err != nil {
				return err
			}
			if health.Status != "ok" {
				return unhealthy(health)
			}
			return nil
		},
	}
}

func unhealthy(h *models.Health) error {
	return dErrors.Newf(dErrors.CodeStorageIO, "unhealthy: store=%s content=%s", h.Store, h.Content)
}
