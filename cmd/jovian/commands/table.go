package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// invocation carries what a command needs to run one dispatch.
type invocation struct {
	ctx     context.Context
	ops     Operations
	cmd     *cobra.Command
	args    []string
	version string
}

// commandDef is one row of the command table.
type commandDef struct {
	name    string
	use     string
	short   string
	long    string
	args    cobra.PositionalArgs
	version bool // accepts -v/--version
	run     func(inv invocation) error
}

var commandTable = []commandDef{
	{
		name:  "configure",
		short: "Configure Jovian for Pro users.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.Configure(inv.ctx))
		},
	},
	{
		name:  "reset",
		short: "Reset Jovian config.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.ResetConfig(inv.ctx))
		},
	},
	{
		name:  "install",
		use:   "install [ENV_FILE]",
		short: "Install packages from environment file.",
		long: `Install packages from environment file:

    $ jovian install

or, install from specific environment file

    $ jovian install environment-linux.yml`,
		args: cobra.ArbitraryArgs,
		run: func(inv invocation) error {
			switch len(inv.args) {
			case 0:
				return delegated(inv.ops.Install(inv.ctx, ""))
			case 1:
				return delegated(inv.ops.Install(inv.ctx, inv.args[0]))
			default:
				displayUsage(inv.cmd.OutOrStdout(), inv.cmd)
				return nil
			}
		},
	},
	{
		name:  "activate",
		short: "Activate conda environment from environment file.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.Activate(inv.ctx))
		},
	},
	{
		name:  "clone",
		use:   "clone NOTEBOOK",
		short: "Clone a notebook hosted on Jovian",
		long: `Clone a notebook hosted on Jovian:

    $ jovian clone aakashns/jovian-tutorial

Or clone a specific version of notebook:

    $ jovian clone aakashns/jovian-tutorial -v 10`,
		args:    cobra.ExactArgs(1),
		version: true,
		run: func(inv invocation) error {
			return delegated(inv.ops.Clone(inv.ctx, inv.args[0], inv.version))
		},
	},
	{
		name:  "pull",
		use:   "pull NOTEBOOK",
		short: "Fetch new version of notebook hosted Jovian.",
		long: `Fetch new version of notebook hosted on Jovian (into current directory):

    $ jovian pull aakashns/jovian-tutorial

Or fetch a specific version of notebook:

    $ jovian pull aakashns/jovian-tutorial -v 10`,
		args:    cobra.ExactArgs(1),
		version: true,
		run: func(inv invocation) error {
			return delegated(inv.ops.Pull(inv.ctx, inv.args[0], inv.version))
		},
	},
	{
		name:  "add-slack",
		short: "Connect slack to get updates.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.AddSlack(inv.ctx))
		},
	},
	{
		name:  "enable-extension",
		short: "Enable Jovian's Jupyter notebook extension.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.SetupExtension(inv.ctx, true))
		},
	},
	{
		name:  "disable-extension",
		short: "Disable Jovian's Jupyter notebook extension.",
		args:  cobra.NoArgs,
		run: func(inv invocation) error {
			return delegated(inv.ops.SetupExtension(inv.ctx, false))
		},
	},
	{
		name:  "help",
		short: "Print this help message.",
		args:  cobra.ArbitraryArgs,
		run: func(inv invocation) error {
			displayUsage(inv.cmd.OutOrStdout(), inv.cmd.Root())
			return nil
		},
	},
	{
		name:  "version",
		short: "Print Jovian's version number.",
		args:  cobra.ArbitraryArgs,
		run: func(inv invocation) error {
			displayVersion(inv.cmd.OutOrStdout())
			return nil
		},
	},
}

// build turns the row into a cobra command bound to ops.
func (d commandDef) build(ops Operations) *cobra.Command {
	use := d.use
	if use == "" {
		use = d.name
	}

	var version string
	cmd := &cobra.Command{
		Use:   use,
		Short: d.short,
		Long:  d.long,
		Args:  d.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.version && cmd.Flags().Changed("version") {
				if err := validateVersion(version); err != nil {
					return err
				}
			}
			return d.run(invocation{
				ctx:     cmd.Context(),
				ops:     ops,
				cmd:     cmd,
				args:    args,
				version: version,
			})
		},
	}
	if d.version {
		cmd.Flags().StringVarP(&version, "version", "v", "", "Version number of the notebook")
	}
	return cmd
}

// validateVersion accepts positive integers only.
func validateVersion(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid value for '-v' / '--version': %q is not a positive integer", v)
	}
	return nil
}
