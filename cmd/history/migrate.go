package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var migrateFlags overrides

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply store migrations and indexes, then exit",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(migrateFlags)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("migrations applied", "store", cfg.StoreBackend)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFlags.backend, "store", "", "store backend (overrides STORE_BACKEND)")
}
