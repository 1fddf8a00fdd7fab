// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package commands implements the attackq command tree.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/appctx"
	"github.com/vulntor/attackq/pkg/config"
	"github.com/vulntor/attackq/pkg/logging"
	"github.com/vulntor/attackq/pkg/storage"
	"github.com/vulntor/attackq/pkg/workspace"
)

const cliExecutable = "attackq"

// NewCommand constructs the top-level attackq CLI command, wiring global
// flags, layered configuration, logging and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile        string
		workspaceDisabled bool
		verbosityCount    int
		outputMode        string
		sink              *logSink
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "attackq schedules and supervises credential attacks",
		Long: `attackq runs hydra-compatible login crackers as supervised jobs.

Jobs are queued in a priority and a standard lane, retried with exponential
backoff, watched for stalls and cancelled cleanly. Credentials found in the
tool output are extracted, deduplicated and stored in the workspace.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(outputMode); err != nil {
				return err
			}

			debug, _ := cmd.Flags().GetBool("debug")
			mgr := config.NewManager()
			if err := mgr.Load(config.DefaultSources(configFile, cmd.Flags(), debug || verbosityCount > 0)...); err != nil {
				return err
			}
			cfg := mgr.Get()
			if verbosityCount > 1 {
				cfg.Log.Level = "trace"
			}

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			if workspaceDisabled {
				cfg.Workspace.Dir = ""
				cfg.Storage.Driver = storage.DriverMemory
				cfg.Spool.Enabled = false
			} else {
				prepared, err := workspace.Prepare(cfg.Workspace.Dir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				cfg.Workspace.Dir = prepared
				cfg.ResolvePaths(&workspace.Workspace{Root: prepared})
				ctx = workspace.WithContext(ctx, prepared)
			}

			sink = &logSink{opts: logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}}
			if err := sink.open(); err != nil {
				return err
			}
			ctx = withLogSink(ctx, sink)
			ctx = appctx.WithSettings(ctx, cfg)

			log.Debug().
				Strs("sources", mgr.Sources()).
				Str("workspace", cfg.Workspace.Dir).
				Msg("configuration loaded")

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if sink != nil {
				return sink.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().BoolVar(&workspaceDisabled, "no-workspace", false, "Disable workspace persistence for this run (in-memory storage)")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().StringVarP(&outputMode, "output", "o", string(format.ModeTable), "Output format (table, json)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Only print results and failures")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "jobs", Title: "Job Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newServerCommand())
	cmd.AddCommand(newJobCommand())
	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newDoctorCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// normalizeFlagName accepts --log-level style spellings for the dotted
// config keys, e.g. --log-level for --log.level.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "log-level", "log-format", "log-file", "workspace-dir":
		name = strings.Replace(name, "-", ".", 1)
	}
	return pflag.NormalizedName(name)
}

// settings returns the resolved configuration prepared by the root command.
func settings(ctx context.Context) (config.Config, error) {
	cfg, ok := appctx.Settings(ctx)
	if !ok {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
