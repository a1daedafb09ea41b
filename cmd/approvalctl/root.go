package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/pkg/utils"
)

type rootOptions struct {
	configPath string
	envFile    string
	jsonOutput bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "approvalctl",
		Short: "Operator CLI for the approval engine",
		Long: `approvalctl inspects and administers an approval engine database.
It opens the same store the server uses (sqlite or postgres, per the config file).
Listing, history and export are scoped to the --actor's roles and groups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging to stderr")

	root.AddCommand(
		migrateCmd(opts),
		listCmd(opts),
		historyCmd(opts),
		exportCmd(opts),
		reconcileCmd(opts),
		balanceCmd(opts),
		setBalanceCmd(opts),
		grantRoleCmd(opts),
		addGroupCmd(opts),
		tokenCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath, o.envFile)
}

// withContainer starts the application container for the duration of fn
func (o *rootOptions) withContainer(ctx context.Context, fn func(ctx context.Context, app *container.Container) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	app, err := container.NewContainer(cfg, utils.NewCLILogger(o.verbose))
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
