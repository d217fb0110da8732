package vulcan

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SoftKiwiGames/vulcan/vulcan/repo"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/source"
)

func (v *Vulcan) buildSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the package source cache",
	}

	var downloadVersion string
	downloadCmd := &cobra.Command{
		Use:           "download [package]",
		Short:         "Download missing sources into the cache",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runSourceDownload(packageArg(args), downloadVersion)
		},
	}
	downloadCmd.Flags().StringVar(&downloadVersion, "version", "", "Package version (default: highest known)")

	var verifyVersion string
	verifyCmd := &cobra.Command{
		Use:           "verify [package]",
		Short:         "Verify the checksums of cached sources",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runSourceVerify(packageArg(args), verifyVersion)
		},
	}
	verifyCmd.Flags().StringVar(&verifyVersion, "version", "", "Package version (default: highest known)")

	cmd.AddCommand(downloadCmd, verifyCmd)
	return cmd
}

func packageArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// selectPackages picks the packages a source command operates on: every
// known package, or a single one when a name is given.
func (v *Vulcan) selectPackages(ctx context.Context, cfg *schema.Config, name, version string) ([]*schema.Package, error) {
	if name == "" {
		repository, err := repo.Load(ctx, cfg.Repository)
		if err != nil {
			return nil, err
		}

		all := repository.Packages()
		out := make([]*schema.Package, 0, len(all))
		for i := range all {
			out = append(out, &all[i])
		}
		return out, nil
	}

	_, root, err := v.resolveRoot(ctx, cfg, name, version)
	if err != nil {
		return nil, err
	}
	return []*schema.Package{root}, nil
}

func (v *Vulcan) runSourceDownload(name, version string) error {
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	packages, err := v.selectPackages(ctx, cfg, name, version)
	if err != nil {
		return err
	}

	cache := source.NewCache(cfg.SourceCache)
	for _, p := range packages {
		for sourceName, src := range p.Sources {
			if cache.Exists(p, sourceName) {
				v.out.Info("%s %s: already cached", p.ID(), sourceName)
				continue
			}
			if err := cache.Download(ctx, p, sourceName, src); err != nil {
				return err
			}
			v.out.Success("%s %s: downloaded", p.ID(), sourceName)
		}
	}

	return nil
}

func (v *Vulcan) runSourceVerify(name, version string) error {
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	packages, err := v.selectPackages(ctx, cfg, name, version)
	if err != nil {
		return err
	}

	failed := 0
	cache := source.NewCache(cfg.SourceCache)
	for _, p := range packages {
		for sourceName, src := range p.Sources {
			if err := cache.Verify(p, sourceName, src); err != nil {
				v.out.Error("%s %s: %v", p.ID(), sourceName, err)
				failed++
				continue
			}
			v.out.Success("%s %s: ok", p.ID(), sourceName)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d source(s) failed verification", failed)
	}
	return nil
}
