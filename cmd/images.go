package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridien-distribution/catalog-cli/internal/images"
	"github.com/meridien-distribution/catalog-cli/internal/store"
)

// stagingResizer copies each source image into a per-reference staging
// directory and records it as the "original" variant. Actual size
// variants are generated by the media server when it picks the staged
// files up.
type stagingResizer struct {
	outDir string
}

func (r stagingResizer) Resize(_ context.Context, sourcePath, reference string) (map[string]string, error) {
	dir := filepath.Join(r.outDir, reference)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "mkdir %s", dir)
	}

	dst := filepath.Join(dir, filepath.Base(sourcePath))
	if err := copyFile(sourcePath, dst); err != nil {
		return nil, err
	}
	return map[string]string{"original": dst}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrapf(err, "copy to %s", dst)
	}
	return nil
}

var imagesCmd = &cobra.Command{
	Use:   "images <dir>",
	Short: "Associate supplier images with catalog records",
	Long:  "Extracts product references from image filenames, stages the images, groups them by reference, and attaches each group to the matching catalog record. Images no record claims are logged as orphans for review.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		paths, err := listImageFiles(args[0])
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.Errorf("no image files in %s", args[0])
		}

		resizer := stagingResizer{outDir: filepath.Join(cfg.Pipeline.DataDir, "staged")}
		batch, err := images.ProcessBatch(ctx, paths, resizer, cfg.Images.Workers)
		if err != nil {
			return err
		}

		ix, unresolved := images.BuildIndex(batch.Images)
		products, err := st.ListProducts(ctx, store.ProductFilter{Limit: matchCandidateLimit})
		if err != nil {
			return err
		}

		result := images.Associate(ix, products)
		for i := range result.Products {
			if len(result.Products[i].Images) == 0 {
				continue
			}
			if err := st.UpsertProduct(ctx, &result.Products[i]); err != nil {
				return err
			}
		}

		orphans := append(result.Orphans, unresolved...)
		if len(orphans) > 0 {
			if err := st.LogOrphanImages(ctx, orphans); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]int{
			"processed":  len(batch.Images),
			"matched":    result.Matched,
			"orphans":    len(orphans),
			"unresolved": len(unresolved),
			"failed":     len(batch.Failed),
		})
	},
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func init() {
	rootCmd.AddCommand(imagesCmd)
}
