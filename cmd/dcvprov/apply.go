package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/history"
	"github.com/alexisbeaulieu97/dcvprov/internal/metrics"
)

// sleeper is replaced in tests so retry delays do not slow them down.
var sleeper engine.Sleeper

func newApplyCmd(root *rootFlags) *cobra.Command {
	opts := nodeOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a provisioning recipe to this node",
		Long: `Apply evaluates the recipe gate against this node and, when it holds,
brings every included step to its desired state in order. The first step
that cannot be brought there aborts the run with exit code 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindNodeFlags(cmd, &opts)
			if err := validateNodeOptions(opts); err != nil {
				return err
			}
			return runApply(cmd, root, opts)
		},
	}

	addNodeFlags(cmd, &opts)
	return cmd
}

func runApply(cmd *cobra.Command, root *rootFlags, opts nodeOptions) error {
	app, err := newAppContext(cmd, root)
	if err != nil {
		return err
	}
	sess, err := app.prepare(opts)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	observers := []engine.Observer{recorder}
	if path := app.settings.HistoryPath; path != "" {
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, store.Observer(app.log))
	}

	execOpts := []engine.Option{
		engine.WithRecipeName(sess.plan.Recipe),
		engine.WithObserver(observers...),
	}
	if sleeper != nil {
		execOpts = append(execOpts, engine.WithSleeper(sleeper))
	}
	exec := engine.NewExecutor(app.log, execOpts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := exec.Run(ctx, sess.plan.Gate, sess.plan.Steps, sess.attrs)
	if summary != nil {
		if err := app.printer.Summary(summary); err != nil {
			return err
		}
	}

	if path := app.settings.MetricsTextfile; path != "" && summary != nil {
		if err := recorder.WriteTextfile(path); err != nil {
			app.log.Error(err, "failed to write metrics")
		}
	}
	return runErr
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
