package main

import (
	"github.com/spf13/cobra"

	"github.com/km-arc/go-lifecycle/framework/app"
	"github.com/km-arc/go-lifecycle/framework/config"
)

func newServeCmd() *cobra.Command {
	var (
		envFiles  []string
		adminAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the application and serve the admin endpoints until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load(envFiles...)
			if adminAddr != "" {
				cfg.Admin.Enabled = true
				cfg.Admin.Addr = adminAddr
			}
			return app.NewWithConfig(cfg).Run(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "serve the admin endpoints on this address")
	return cmd
}
