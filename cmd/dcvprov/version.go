package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/recipe"
)

// Set through -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type buildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Recipes   []string `json:"recipes"`
}

// readBuildInfo prefers the linker-set values and falls back to the VCS
// stamp the Go toolchain embeds in module builds.
func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Recipes:   recipe.BuiltinNames(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Built == "unknown":
			info.Built = s.Value
		}
	}
	return info
}

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display build information and the built-in recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := readBuildInfo()
			out := cmd.OutOrStdout()
			if flags.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "dcvprov %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
			fmt.Fprintf(out, "commit:  %s\n", info.Commit)
			fmt.Fprintf(out, "built:   %s\n", info.Built)
			fmt.Fprintf(out, "recipes: %s\n", strings.Join(info.Recipes, ", "))
			return nil
		},
	}
}
