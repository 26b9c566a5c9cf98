package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/recipe"
)

func newRecipeCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Inspect and validate recipes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the built-in recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range recipe.BuiltinNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [name|path]",
		Short: "Print a recipe document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := recipe.DefaultName
			if len(args) == 1 {
				ref = args[0]
			}
			data, err := recipe.BuiltinSource(ref)
			if err != nil {
				var readErr error
				if data, readErr = os.ReadFile(ref); readErr != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	opts := nodeOptions{}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a recipe and show which steps apply to this node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindNodeFlags(cmd, &opts)
			if err := validateNodeOptions(opts); err != nil {
				return err
			}
			app, err := newAppContext(cmd, root)
			if err != nil {
				return err
			}
			sess, err := app.prepare(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid: %d steps included", sess.plan.Recipe, len(sess.plan.Steps))
			if n := len(sess.plan.Excluded); n > 0 {
				fmt.Fprintf(out, ", %d excluded for this node", n)
			}
			fmt.Fprintln(out)
			for _, name := range sess.plan.Excluded {
				fmt.Fprintf(out, "  excluded: %s\n", name)
			}
			return nil
		},
	}
	addNodeFlags(validate, &opts)
	cmd.AddCommand(validate)

	return cmd
}
