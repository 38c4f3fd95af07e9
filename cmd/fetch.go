package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/meridien-distribution/catalog-cli/internal/fetcher"
)

var fetchProcess bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Sync the supplier FTP drop-box",
	Long:  "Downloads new documents and images from the configured FTP drop-box into the data directory. With --process, extraction runs on the downloaded documents immediately.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		ctx := cmd.Context()

		box := fetcher.New(cfg.FTP)
		result, err := box.Sync(ctx, cfg.Pipeline.DataDir)
		if err != nil {
			return err
		}

		out := map[string]any{"sync": result}

		if fetchProcess && len(result.Documents) > 0 {
			if err := cfg.Validate("extract"); err != nil {
				return err
			}
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := newPipeline(st)
			if err != nil {
				return err
			}

			for _, doc := range result.Documents {
				fr, err := p.ProcessFile(ctx, doc)
				if err != nil {
					out[doc] = map[string]string{"error": err.Error()}
					continue
				}
				out[doc] = fr
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchProcess, "process", false, "extract fields from downloaded documents")
	rootCmd.AddCommand(fetchCmd)
}
