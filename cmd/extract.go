package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file-or-dir>",
	Short: "Extract product fields from supplier documents",
	Long:  "Processes a PDF, XLSX, or CSV document (or a directory of them) into product records. PDFs go through OCR and Claude field extraction; price lists are parsed directly at full confidence.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := newPipeline(st)
		if err != nil {
			return err
		}

		info, err := os.Stat(args[0])
		if err != nil {
			return eris.Wrapf(err, "stat %s", args[0])
		}

		var out any
		if info.IsDir() {
			out, err = p.ProcessDir(ctx, args[0])
		} else {
			out, err = p.ProcessFile(ctx, args[0])
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
