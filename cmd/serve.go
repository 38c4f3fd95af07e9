package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/export"
	"github.com/meridien-distribution/catalog-cli/internal/match"
	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/pipeline"
	"github.com/meridien-distribution/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog review API",
	Long:  "Serves the HTTP API the review UI talks to: record listing, validation, match lookups, and orphan image review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// The extract webhook only works when the LLM is configured;
		// the rest of the API does not need it.
		var pl *pipeline.Pipeline
		if cfg.Anthropic.Key != "" {
			if pl, err = newPipeline(st); err != nil {
				return err
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, pl),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, pl *pipeline.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", func(w http.ResponseWriter, req *http.Request) {
		filter := store.ProductFilter{
			Status: model.Status(req.URL.Query().Get("status")),
		}
		filter.Limit, _ = strconv.Atoi(req.URL.Query().Get("limit"))
		filter.Offset, _ = strconv.Atoi(req.URL.Query().Get("offset"))

		products, err := st.ListProducts(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	})

	r.Get("/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		p, err := st.GetProduct(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	r.Post("/products/{id}/validate", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if err := st.UpdateStatus(req.Context(), id, model.StatusValidated); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StatusValidated)})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		counts, err := st.CountByStatus(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	r.Get("/match/{erpID}", func(w http.ResponseWriter, req *http.Request) {
		erpID, err := strconv.Atoi(chi.URLParam(req, "erpID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("erpID must be an integer"))
			return
		}

		descriptors, err := st.ListDescriptors(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		filtered := filterDescriptor(descriptors, erpID)
		if len(filtered) == 0 {
			writeError(w, http.StatusNotFound, eris.Errorf("no cached descriptor with erp id %d", erpID))
			return
		}

		products, err := st.ListProducts(req.Context(), store.ProductFilter{Limit: matchCandidateLimit})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		ranked, err := match.Match(filtered[0], products, match.Options{
			MaxResults:        cfg.Matcher.MaxResults,
			HighThreshold:     cfg.Matcher.HighThreshold,
			MediumThreshold:   cfg.Matcher.MediumThreshold,
			MinPartialCodeLen: cfg.Matcher.MinPartialCodeLen,
		})
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}

		dm := descriptorMatches{ERPID: erpID, Name: filtered[0].Name}
		for _, m := range ranked {
			dm.Matches = append(dm.Matches, matchResult{
				ProductID: m.Product.ID,
				Type:      m.Type,
				Score:     m.Score,
			})
		}
		writeJSON(w, http.StatusOK, dm)
	})

	r.Post("/extract", func(w http.ResponseWriter, req *http.Request) {
		if pl == nil {
			writeError(w, http.StatusServiceUnavailable, eris.New("extraction is not configured; set anthropic.key"))
			return
		}

		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Path == "" {
			writeError(w, http.StatusBadRequest, eris.New("body must be {\"path\": \"<file-or-dir>\"}"))
			return
		}

		info, err := os.Stat(body.Path)
		if err != nil {
			writeError(w, http.StatusNotFound, eris.Wrap(err, "stat path"))
			return
		}

		var out any
		if info.IsDir() {
			out, err = pl.ProcessDir(req.Context(), body.Path)
		} else {
			out, err = pl.ProcessFile(req.Context(), body.Path)
		}
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/export", func(w http.ResponseWriter, req *http.Request) {
		status := model.Status(req.URL.Query().Get("status"))
		if status == "" {
			status = model.StatusValidated
		}

		products, err := st.ListProducts(req.Context(), store.ProductFilter{
			Status: status,
			Limit:  matchCandidateLimit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		tmp := filepath.Join(os.TempDir(), fmt.Sprintf("catalog-%d.xlsx", time.Now().UnixNano()))
		if err := export.Write(tmp, products); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		defer os.Remove(tmp)

		w.Header().Set("Content-Disposition", `attachment; filename="catalog.xlsx"`)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		http.ServeFile(w, req, tmp)
	})

	r.Get("/orphans", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}
		orphans, err := st.ListOrphanImages(req.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, orphans)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
