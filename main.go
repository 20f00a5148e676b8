package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	lblog "lapboard/log"
)

// app carries what every command needs after flag/env resolution.
type app struct {
	cfg Config
	log *zap.Logger
}

func main() {
	// Auto-load ./.env if present before any flag or env lookup
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "lapboard",
		Short:         "Lap time leaderboard built from result-screen screenshots",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			if a.cfg, err = configFrom(v); err != nil {
				return err
			}
			a.log, err = lblog.New(a.cfg.LogLevel, a.cfg.LogFormat)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	addConfigFlags(root.PersistentFlags())

	serve := newServeCmd(a)
	root.AddCommand(serve, newMigrateCmd(a), newWatchCmd(a), newExtractCmd(a), newReportCmd(a))
	// bare invocation serves
	root.RunE = serve.RunE
	return root
}
