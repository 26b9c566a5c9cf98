package main

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/config"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/recipe"
	"github.com/alexisbeaulieu97/dcvprov/internal/report"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// hostSystem is what steps act through on this node.
type hostSystem struct {
	Packages system.PackageManager
	Services system.ServiceManager
	Runner   system.Runner
	Files    system.Filesystem
}

// newHostSystem is replaced in tests.
var newHostSystem = defaultHostSystem

func defaultHostSystem(settings config.Settings, a attrs.NodeAttributes, log *logger.Logger) (hostSystem, error) {
	runner := system.NewExecRunner(log)
	packages, err := system.NewPackageManager(a.Platform(), runner)
	if err != nil {
		packages = system.Unsupported{Err: err}
	}
	return hostSystem{
		Packages: packages,
		Services: system.NewSystemd(runner),
		Runner:   runner,
		Files:    system.NewOSFiles(settings.Root),
	}, nil
}

// appContext carries what every command resolves before doing work.
type appContext struct {
	settings config.Settings
	log      *logger.Logger
	printer  *report.Printer
	color    bool
}

func newAppContext(cmd *cobra.Command, flags *rootFlags) (*appContext, error) {
	settings, err := resolveSettings(cmd, flags)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{
		Level:         settings.LogLevel,
		HumanReadable: logger.IsTerminal(cmd.ErrOrStderr()),
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	color := !flags.json && logger.IsTerminal(cmd.OutOrStdout())
	return &appContext{
		settings: settings,
		log:      log,
		color:    color,
		printer:  report.NewPrinter(cmd.OutOrStdout(), report.WithColor(color), report.WithJSON(flags.json)),
	}, nil
}

// resolveSettings loads the settings file and applies explicit flags on top.
func resolveSettings(cmd *cobra.Command, flags *rootFlags) (config.Settings, error) {
	path, required := flags.configPath, true
	if path == "" {
		path, required = config.DefaultSettingsPath, false
	}
	settings, err := config.LoadSettings(path, required)
	if err != nil {
		return config.Settings{}, err
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"log-level", flags.logLevel, &settings.LogLevel},
		{"root", flags.root, &settings.Root},
		{"state-dir", flags.stateDir, &settings.StateDir},
		{"history", flags.historyPath, &settings.HistoryPath},
		{"metrics-textfile", flags.metricsTextfile, &settings.MetricsTextfile},
		{"files-dir", flags.filesDir, &settings.FilesDir},
		{"templates-dir", flags.templatesDir, &settings.TemplatesDir},
		{"os-release", flags.osReleasePath, &settings.OSReleasePath},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			*o.dst = strings.TrimSpace(o.value)
		}
	}
	if flags.verbose {
		settings.LogLevel = "debug"
	}

	if err := config.ValidateSettings(&settings); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// session is a recipe compiled against this node.
type session struct {
	attrs attrs.NodeAttributes
	plan  *recipe.Plan
}

// prepare loads the recipe, snapshots the node attributes and compiles the
// recipe against the host system.
func (c *appContext) prepare(opts nodeOptions) (*session, error) {
	r, err := recipe.Load(opts.Recipe)
	if err != nil {
		return nil, err
	}

	a, err := buildAttributes(c.settings, opts)
	if err != nil {
		return nil, err
	}

	host, err := newHostSystem(c.settings, a, c.log)
	if err != nil {
		return nil, err
	}

	reg, err := resources.NewRegistry(resources.Dependencies{
		Packages:  host.Packages,
		Services:  host.Services,
		Runner:    host.Runner,
		Files:     host.Files,
		Renderer:  system.NewTemplateRenderer(layered(c.settings.TemplatesDir, recipe.Templates())),
		Artifacts: layered(c.settings.FilesDir, recipe.Files()),
		StateDir:  c.settings.StateDir,
	})
	if err != nil {
		return nil, err
	}

	plan, err := recipe.Compile(r, a, reg)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(map[string]any{
		"recipe":   plan.Recipe,
		"platform": a.Platform(),
		"role":     a.Role(),
		"graphics": a.GraphicsInstance(),
		"steps":    len(plan.Steps),
		"excluded": len(plan.Excluded),
	}).Debug("recipe compiled")

	return &session{attrs: a, plan: plan}, nil
}

// layered puts an optional override directory in front of the built-in
// files.
func layered(dir string, builtin fs.FS) fs.FS {
	if dir == "" {
		return builtin
	}
	return system.LayeredFS{os.DirFS(dir), builtin}
}
