package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	httpapi "github.com/garyjia/approval-engine/internal/interfaces/http"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				printf(cmd, "applied %d migration(s)\n", app.MigrationsApplied())
				return nil
			})
		},
	}
}

type listFlags struct {
	actor       string
	requestType string
	stages      []string
	submittedBy string
	limit       int
	offset      int
}

func (f *listFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVar(&f.actor, "actor", "", "actor whose visibility applies")
	cmd.Flags().StringVar(&f.requestType, "type", "", "request type (leave, fund_request, failure_to_log)")
	cmd.Flags().StringSliceVar(&f.stages, "stage", nil, "stage filter (repeatable)")
	cmd.Flags().StringVar(&f.submittedBy, "submitted-by", "", "submitter filter")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "rows to skip")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("type")
}

func (f *listFlags) filter() service.ListFilter {
	filter := service.ListFilter{
		SubmittedBy: f.submittedBy,
		Limit:       f.limit,
		Offset:      f.offset,
	}
	for _, s := range f.stages {
		if stage := workflow.ParseStageID(s); stage != "" {
			filter.Stages = append(filter.Stages, stage)
		}
	}
	return filter
}

func listCmd(opts *rootOptions) *cobra.Command {
	f := &listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests visible to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				svc := app.Services()
				actor, err := svc.Actors.Resolve(ctx, f.actor)
				if err != nil {
					return err
				}
				requestType := workflow.RequestType(f.requestType)
				recs, err := svc.Workflow.ListVisible(ctx, actor, requestType, f.filter())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), recs)
				}

				def, err := app.Registry().Get(requestType)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), table.Row{"ID", "Stage", "Submitted By", "Group", "Submitted At"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.ID, def.Label(r.CurrentStage), r.SubmittedBy, r.GroupKey, r.SubmittedAt.Format(time.RFC3339)})
				}
				tw.AppendFooter(table.Row{"", "", "", "Total", len(recs)})
				tw.Render()
				return nil
			})
		},
	}
	f.register(cmd, 50)
	return cmd
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "history <request-id>",
		Short: "Show the audit trail of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				svc := app.Services()
				actor, err := svc.Actors.Resolve(ctx, actorID)
				if err != nil {
					return err
				}
				entries, err := svc.Workflow.History(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), entries)
				}

				tw := newTable(cmd.OutOrStdout(), table.Row{"#", "Action", "Stage", "Result", "Actor", "Notes", "At"})
				for i, e := range entries {
					tw.AppendRow(table.Row{i + 1, e.Action, e.StageID, e.ResultStage, e.ActorID, e.Notes, e.Timestamp.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor whose visibility applies")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func exportCmd(opts *rootOptions) *cobra.Command {
	f := &listFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write visible requests and their history to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				svc := app.Services()
				actor, err := svc.Actors.Resolve(ctx, f.actor)
				if err != nil {
					return err
				}

				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				if err := svc.Export.Export(ctx, actor, workflow.RequestType(f.requestType), f.filter(), file); err != nil {
					file.Close()
					os.Remove(out)
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				printf(cmd, "wrote %s\n", out)
				return nil
			})
		},
	}
	f.register(cmd, 0)
	cmd.Flags().StringVarP(&out, "out", "o", "requests.xlsx", "output file")
	return cmd
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	var actorID, requestType string
	cmd := &cobra.Command{
		Use:   "reconcile [request-id]",
		Short: "Re-apply side-effects that failed after a terminal approval",
		Long: "With a request id, reconciles that request. Without one, walks every approved\n" +
			"request of --type and applies the side-effects that are still missing.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				svc := app.Services()
				actor, err := svc.Actors.Resolve(ctx, actorID)
				if err != nil {
					return err
				}

				if len(args) == 1 {
					applied, err := svc.Reconciler.Reconcile(ctx, args[0], actor)
					if err != nil {
						return err
					}
					if opts.jsonOutput {
						return printJSON(cmd.OutOrStdout(), map[string]any{"request_id": args[0], "applied": applied})
					}
					if applied {
						printf(cmd, "%s: side-effect applied\n", args[0])
					} else {
						printf(cmd, "%s: nothing to do\n", args[0])
					}
					return nil
				}

				if requestType == "" {
					return fmt.Errorf("--type is required when no request id is given")
				}
				report, err := svc.Reconciler.ReconcileAll(ctx, workflow.RequestType(requestType), actor)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					failed := make(map[string]string, len(report.Failed))
					for id, ferr := range report.Failed {
						failed[id] = ferr.Error()
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"checked": report.Checked, "applied": report.Applied, "failed": failed,
					})
				}

				tw := newTable(cmd.OutOrStdout(), table.Row{"Request", "Result"})
				for _, id := range report.Applied {
					tw.AppendRow(table.Row{id, "applied"})
				}
				for id, ferr := range report.Failed {
					tw.AppendRow(table.Row{id, ferr.Error()})
				}
				tw.AppendFooter(table.Row{"Checked", report.Checked})
				tw.Render()
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d request(s) could not be reconciled", len(report.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "admin actor performing the reconciliation")
	cmd.Flags().StringVar(&requestType, "type", "", "request type to sweep when no id is given")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func balanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <subject> <credit-kind>",
		Short: "Show a credit balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				balance, err := app.Repositories().Ledger.CurrentBalance(ctx, args[0], strings.ToUpper(args[1]))
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"subject": args[0], "credit_kind": strings.ToUpper(args[1]), "balance": balance,
					})
				}
				printf(cmd, "%s %s: %g\n", args[0], strings.ToUpper(args[1]), balance)
				return nil
			})
		},
	}
}

func setBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <subject> <credit-kind> <amount>",
		Short: "Overwrite a credit balance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				if err := app.Repositories().Ledger.SetBalance(ctx, args[0], strings.ToUpper(args[1]), amount); err != nil {
					return err
				}
				printf(cmd, "%s %s set to %g\n", args[0], strings.ToUpper(args[1]), amount)
				return nil
			})
		},
	}
}

func grantRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-role <actor> <role>",
		Short: "Grant a role to an actor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := workflow.ParseRole(args[1])
			if err != nil {
				return err
			}
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				if err := app.Repositories().Identity.GrantRole(ctx, args[0], string(role)); err != nil {
					return err
				}
				printf(cmd, "granted %s to %s\n", role, args[0])
				return nil
			})
		},
	}
}

func addGroupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-group <actor> <group>",
		Short: "Add an actor to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, app *container.Container) error {
				if err := app.Repositories().Identity.AddToGroup(ctx, args[0], args[1]); err != nil {
					return err
				}
				printf(cmd, "added %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Issue a bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := httpapi.IssueToken(httpapi.AuthConfig{
				JWTSecret: cfg.Auth.JWTSecret,
				Issuer:    cfg.Auth.Issuer,
			}, args[0], ttl, time.Now())
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
