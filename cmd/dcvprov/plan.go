package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
)

func newPlanCmd(root *rootFlags) *cobra.Command {
	opts := nodeOptions{}
	var check bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change without changing anything",
		Long: `Plan probes every included step once, in order, and reports which ones
would change the node. Steps that depend on earlier ones may not be
probeable until those have been applied; they are reported, not fatal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindNodeFlags(cmd, &opts)
			if err := validateNodeOptions(opts); err != nil {
				return err
			}
			return runPlan(cmd, root, opts, check)
		},
	}

	addNodeFlags(cmd, &opts)
	cmd.Flags().BoolVar(&check, "check", false, "Exit with status 1 when any step would change")
	return cmd
}

func runPlan(cmd *cobra.Command, root *rootFlags, opts nodeOptions, check bool) error {
	app, err := newAppContext(cmd, root)
	if err != nil {
		return err
	}
	sess, err := app.prepare(opts)
	if err != nil {
		return err
	}

	exec := engine.NewExecutor(app.log, engine.WithRecipeName(sess.plan.Recipe))
	preview, err := exec.Plan(commandContext(cmd), sess.plan.Gate, sess.plan.Steps, sess.attrs)
	if err != nil {
		return err
	}
	if err := app.printer.Preview(sess.plan.Recipe, preview); err != nil {
		return err
	}

	if check && preview.Pending() > 0 {
		return fmt.Errorf("%d of %d steps would change", preview.Pending(), len(preview.Steps))
	}
	return nil
}
