package vulcan

import (
	"github.com/spf13/cobra"

	"github.com/SoftKiwiGames/vulcan/vulcan/endpoint"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/ui"
)

func (v *Vulcan) buildEndpointsCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "endpoints",
		Short:         "List the configured build endpoints and check that they are reachable",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runEndpoints()
		},
	}
}

func (v *Vulcan) runEndpoints() error {
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	sshClient := ssh.NewClient()
	defer sshClient.Close()

	rows := make([][]any, 0, len(cfg.Endpoints))
	for _, epCfg := range cfg.Endpoints {
		ep, err := endpoint.New(epCfg)
		if err != nil {
			return err
		}

		status := "ok"
		if err := ep.Ping(ctx, sshClient); err != nil {
			status = err.Error()
		}

		rows = append(rows, []any{epCfg.Name, epCfg.Addr, epCfg.User, ep.MaxJobs(), status})
	}

	ui.Table(v.stdout, []any{"Name", "Addr", "User", "Max Jobs", "Status"}, rows)
	return nil
}
