package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath      string
	logLevel        string
	verbose         bool
	json            bool
	root            string
	stateDir        string
	historyPath     string
	metricsTextfile string
	filesDir        string
	templatesDir    string
	osReleasePath   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "dcvprov",
		Short: "dcvprov configures NICE DCV on a cluster head node",
		Long: `dcvprov runs an idempotent provisioning recipe against this node. Every
step probes the current state first and only changes what differs, so a
recipe can be applied any number of times.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Settings file (default /etc/dcvprov/config.yaml when present)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&flags.json, "json", false, "Print reports as JSON")
	pf.StringVar(&flags.root, "root", "", "Directory all managed paths are relative to")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory for run markers")
	pf.StringVar(&flags.historyPath, "history", "", "Run history database")
	pf.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write run metrics to this node_exporter textfile")
	pf.StringVar(&flags.filesDir, "files-dir", "", "Directory searched for file_copy sources before the built-in files")
	pf.StringVar(&flags.templatesDir, "templates-dir", "", "Directory searched for templates before the built-in templates")
	pf.StringVar(&flags.osReleasePath, "os-release", "", "os-release file describing the platform")

	cmd.AddCommand(newApplyCmd(flags))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newRecipeCmd(flags))
	cmd.AddCommand(newVersionCmd(flags))

	return cmd
}
