package main

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridien-distribution/catalog-cli/internal/match"
	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/store"
)

var matchAll bool

// matchCandidateLimit bounds how many catalog records one match run
// loads into memory.
const matchCandidateLimit = 50000

// descriptorMatches is one row of match output.
type descriptorMatches struct {
	ERPID   int           `json:"erp_id"`
	Name    string        `json:"name"`
	Matches []matchResult `json:"matches"`
}

type matchResult struct {
	ProductID string          `json:"product_id"`
	Type      match.MatchType `json:"type"`
	Score     float64         `json:"score"`
}

var matchCmd = &cobra.Command{
	Use:   "match [erp-id]",
	Short: "Match ERP descriptors against catalog records",
	Long:  "Runs the match cascade for every cached ERP descriptor (or a single one) against the local product records and prints ranked candidates.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		descriptors, err := st.ListDescriptors(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			erpID, err := strconv.Atoi(args[0])
			if err != nil {
				return eris.Wrapf(err, "invalid erp id %q", args[0])
			}
			descriptors = filterDescriptor(descriptors, erpID)
			if len(descriptors) == 0 {
				return eris.Errorf("no cached descriptor with erp id %d; run sync first", erpID)
			}
		}

		products, err := st.ListProducts(ctx, store.ProductFilter{Limit: matchCandidateLimit})
		if err != nil {
			return err
		}

		opts := match.Options{
			MaxResults:        cfg.Matcher.MaxResults,
			HighThreshold:     cfg.Matcher.HighThreshold,
			MediumThreshold:   cfg.Matcher.MediumThreshold,
			MinPartialCodeLen: cfg.Matcher.MinPartialCodeLen,
		}

		var out []descriptorMatches
		for _, desc := range descriptors {
			ranked, err := match.Match(desc, products, opts)
			if err != nil {
				return err
			}
			if len(ranked) == 0 && !matchAll {
				continue
			}
			dm := descriptorMatches{ERPID: desc.ERPID, Name: desc.Name}
			for _, r := range ranked {
				dm.Matches = append(dm.Matches, matchResult{
					ProductID: r.Product.ID,
					Type:      r.Type,
					Score:     r.Score,
				})
			}
			out = append(out, dm)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func filterDescriptor(descriptors []model.ERPDescriptor, erpID int) []model.ERPDescriptor {
	for _, d := range descriptors {
		if d.ERPID == erpID {
			return []model.ERPDescriptor{d}
		}
	}
	return nil
}

func init() {
	matchCmd.Flags().BoolVar(&matchAll, "all", false, "include descriptors with no match")
	rootCmd.AddCommand(matchCmd)
}
