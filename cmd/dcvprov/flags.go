package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/config"
)

// nodeOptions select the recipe and describe the node it runs against.
type nodeOptions struct {
	Recipe       string
	AttrsFile    string
	Role         string
	InstanceType string
	Graphics     bool
	graphicsSet  bool
	Set          []string
}

func addNodeFlags(cmd *cobra.Command, opts *nodeOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.Recipe, "recipe", "r", "", "Built-in recipe name or recipe file (default dcv-head-node)")
	f.StringVarP(&opts.AttrsFile, "attrs", "a", "", "Node attributes file (.yaml, .yml or .toml)")
	f.StringVar(&opts.Role, "role", "", "Cluster role of this node, e.g. MasterServer or ComputeFleet")
	f.StringVar(&opts.InstanceType, "instance-type", "", "Instance type of this node")
	f.BoolVar(&opts.Graphics, "graphics", false, "Enable GPU acceleration steps")
	f.StringArrayVar(&opts.Set, "set", nil, "Set a node attribute (key=value, repeatable)")
}

// bindNodeFlags records which optional node flags were given explicitly.
func bindNodeFlags(cmd *cobra.Command, opts *nodeOptions) {
	opts.graphicsSet = cmd.Flags().Changed("graphics")
}

func validateNodeOptions(opts nodeOptions) error {
	for _, pair := range opts.Set {
		if key, _, ok := strings.Cut(pair, "="); !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("--set expects key=value, got %q", pair)
		}
	}
	if opts.Role != "" && strings.TrimSpace(opts.Role) == "" {
		return fmt.Errorf("--role must not be blank")
	}
	return nil
}

// buildAttributes layers os-release, the attributes file and the command
// line, later sources winning.
func buildAttributes(settings config.Settings, opts nodeOptions) (attrs.NodeAttributes, error) {
	b := attrs.NewBuilder()
	if err := b.LoadOSRelease(settings.OSReleasePath); err != nil {
		return attrs.NodeAttributes{}, err
	}
	if opts.AttrsFile != "" {
		if err := b.LoadFile(opts.AttrsFile); err != nil {
			return attrs.NodeAttributes{}, err
		}
	}
	if err := b.ParseAssignments(opts.Set); err != nil {
		return attrs.NodeAttributes{}, err
	}
	if opts.Role != "" {
		b.Set(attrs.KeyRole, opts.Role)
	}
	if opts.InstanceType != "" {
		b.Set(attrs.KeyInstanceType, opts.InstanceType)
	}
	if opts.graphicsSet {
		b.SetGraphics(opts.Graphics)
	}
	return b.Build(), nil
}
