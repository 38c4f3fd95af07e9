package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/store"
)

var (
	productsStatus string
	productsLimit  int
	productsOffset int
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Inspect and manage catalog records",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		products, err := st.ListProducts(ctx, store.ProductFilter{
			Status: model.Status(productsStatus),
			Limit:  productsLimit,
			Offset: productsOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(products)
	},
}

var productsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one catalog record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProduct(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var productsValidateCmd = &cobra.Command{
	Use:   "validate <id>...",
	Short: "Mark records as validated",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, id := range args {
			if err := st.UpdateStatus(ctx, id, model.StatusValidated); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s validated\n", id)
		}
		return nil
	},
}

var productsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts by lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	},
}

func init() {
	productsListCmd.Flags().StringVar(&productsStatus, "status", "", "filter by lifecycle state")
	productsListCmd.Flags().IntVar(&productsLimit, "limit", 100, "maximum records returned")
	productsListCmd.Flags().IntVar(&productsOffset, "offset", 0, "records to skip")

	productsCmd.AddCommand(productsListCmd, productsShowCmd, productsValidateCmd, productsStatusCmd)
	rootCmd.AddCommand(productsCmd)
}
