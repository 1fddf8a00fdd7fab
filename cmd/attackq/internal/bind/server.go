package bind

import (
	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/pkg/config"
	srv "github.com/vulntor/attackq/pkg/server"
)

// ServerOptions holds configuration options for the server command.
type ServerOptions struct {
	Server        config.ServerConfig
	Spool         config.SpoolConfig
	SkipToolCheck bool
}

// BindServerOptions combines the resolved configuration with the
// server-only flags and validates the result.
//
// Flags read:
//   - --skip-tool-check: start without probing the attack tool
//   - --spool: watch the spool directory (same as spool.enabled)
//
// The server.* flags are already merged into cfg by the config manager.
func BindServerOptions(cmd *cobra.Command, cfg config.Config) (ServerOptions, error) {
	skip, _ := cmd.Flags().GetBool("skip-tool-check")
	spoolOn, _ := cmd.Flags().GetBool("spool")

	if port := cfg.Server.Port; port < 1 || port > 65535 {
		return ServerOptions{}, srv.NewInvalidPortError(port)
	}

	opts := ServerOptions{
		Server:        cfg.Server,
		Spool:         cfg.Spool,
		SkipToolCheck: skip,
	}
	if spoolOn {
		opts.Spool.Enabled = true
	}
	if opts.Spool.Enabled && opts.Spool.Dir == "" {
		return ServerOptions{}, srv.WrapInvalidConfig(errSpoolDir)
	}
	return opts, nil
}
