package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridien-distribution/catalog-cli/internal/export"
	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/store"
)

var (
	exportOutput   string
	exportStatus   string
	exportMarkDone bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export catalog records to an XLSX workbook",
	Long:  "Writes catalog records to an XLSX workbook with a product sheet and a summary sheet. By default only validated records are exported; --mark advances them to exported afterwards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		products, err := st.ListProducts(ctx, store.ProductFilter{
			Status: model.Status(exportStatus),
			Limit:  matchCandidateLimit,
		})
		if err != nil {
			return err
		}

		output := exportOutput
		if output == "" {
			output = cfg.Export.Output
		}
		if err := export.Write(output, products); err != nil {
			return err
		}

		if exportMarkDone {
			for i := range products {
				if err := st.UpdateStatus(ctx, products[i].ID, model.StatusExported); err != nil {
					return err
				}
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d products to %s\n", len(products), output)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default from config)")
	exportCmd.Flags().StringVar(&exportStatus, "status", string(model.StatusValidated), "lifecycle state to export")
	exportCmd.Flags().BoolVar(&exportMarkDone, "mark", false, "mark exported records")
	rootCmd.AddCommand(exportCmd)
}
