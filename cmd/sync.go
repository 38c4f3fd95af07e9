package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/pkg/odoo"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the ERP descriptor cache from Odoo",
	Long:  "Fetches the product catalog from Odoo over JSON-RPC and replaces the local descriptor cache with the new snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client := odoo.NewClient(odoo.Config{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			APIKey:   cfg.Odoo.APIKey,
		})
		if err := client.Authenticate(ctx); err != nil {
			return err
		}

		descriptors, err := client.FetchProducts(ctx, cfg.Odoo.Limit)
		if err != nil {
			return err
		}
		if err := st.ReplaceDescriptors(ctx, descriptors); err != nil {
			return err
		}

		zap.L().Info("sync: descriptor cache refreshed", zap.Int("count", len(descriptors)))
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d ERP descriptors\n", len(descriptors))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
