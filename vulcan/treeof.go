package vulcan

import (
	"github.com/spf13/cobra"

	"github.com/SoftKiwiGames/vulcan/vulcan/dag"
)

func (v *Vulcan) buildTreeOfCommand() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:           "tree-of [package]",
		Short:         "Print the dependency tree of a package",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runTreeOf(args[0], version)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Package version (default: highest known)")

	return cmd
}

func (v *Vulcan) runTreeOf(name, version string) error {
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	repository, root, err := v.resolveRoot(ctx, cfg, name, version)
	if err != nil {
		return err
	}

	d, err := dag.Build(ctx, repository, root)
	if err != nil {
		return err
	}

	return d.RenderTree(v.stdout)
}
