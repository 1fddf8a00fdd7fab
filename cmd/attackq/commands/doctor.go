package commands

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/appctx"
	"github.com/vulntor/attackq/pkg/server"
	"github.com/vulntor/attackq/pkg/storage"
	"github.com/vulntor/attackq/pkg/workspace"
)

// check is one line of the doctor report.
type check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
	err    error
}

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Short:   "Check configuration, workspace, storage and the attack tool",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "pass checks"
			ctx := cmd.Context()

			cfg, err := settings(ctx)
			if err != nil {
				return fail(cmd, op, err)
			}

			var checks []check
			sources := "defaults"
			if mgr, ok := appctx.Config(ctx); ok {
				sources = strings.Join(mgr.Sources(), ", ")
			}
			checks = append(checks, check{Name: "config", OK: true, Detail: "loaded from " + sources})

			if root, ok := workspace.FromContext(ctx); !ok {
				checks = append(checks, check{Name: "workspace", OK: true, Detail: "disabled"})
			} else {
				ws, err := workspace.Open(root)
				switch {
				case errors.Is(err, workspace.ErrLocked):
					// a running server holds it; that is not a failure
					checks = append(checks, check{Name: "workspace", OK: true, Detail: root + " (in use)"})
				case err != nil:
					checks = append(checks, check{Name: "workspace", Detail: err.Error(), err: err})
				default:
					_ = ws.Close()
					checks = append(checks, check{Name: "workspace", OK: true, Detail: root})
				}
			}

			if store, err := storage.NewBackend(ctx, &cfg.Storage); err != nil {
				checks = append(checks, check{Name: "storage", Detail: err.Error(), err: server.WrapStorageInit(err)})
			} else {
				_ = store.Close()
				detail := cfg.Storage.Driver
				if cfg.Storage.Path != "" {
					detail += " " + cfg.Storage.Path
				}
				checks = append(checks, check{Name: "storage", OK: true, Detail: detail})
			}

			runner := cfg.Tool.Runner(log.With().Str("component", "doctor").Logger())
			if info, err := cfg.Tool.Builder().CheckVersion(ctx, runner, cfg.Tool.VersionConstraint); err != nil {
				detail := err.Error()
				if info.Version != nil {
					detail = info.Path + " " + info.Version.String() + ": " + detail
				}
				checks = append(checks, check{Name: "tool", Detail: detail, err: server.WrapToolCheck(err)})
			} else {
				checks = append(checks, check{Name: "tool", OK: true, Detail: info.Path + " " + info.Version.String()})
			}

			f := format.FromCommand(cmd)
			if f.Mode() == format.ModeJSON {
				if err := f.PrintJSON(checks); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(checks))
				for _, c := range checks {
					status := "ok"
					if !c.OK {
						status = "FAIL"
					}
					rows = append(rows, []string{c.Name, status, c.Detail})
				}
				if err := f.PrintTable([]string{"Check", "Status", "Detail"}, rows); err != nil {
					return err
				}
			}

			for _, c := range checks {
				if c.err != nil {
					return fail(cmd, op, c.err)
				}
			}
			return nil
		},
	}
}
