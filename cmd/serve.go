package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/pipeline"
	"github.com/sells-group/posting-cli/internal/scrape"
)

const maxRequestBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Analyzer, env.Fetcher),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})
		return g.Wait()
	},
}

type analyzeRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type analyzeResponse struct {
	RunID   string        `json:"run_id"`
	Outcome model.Outcome `json:"outcome"`
	Record  model.Record  `json:"record"`
	Error   string        `json:"error,omitempty"`
	Notes   []string      `json:"notes,omitempty"`
}

// analyzeHandler serializes requests: the analyzer keeps one transcript
// at a time.
type analyzeHandler struct {
	mu       sync.Mutex
	analyzer rowAnalyzer
	fetcher  scrape.Fetcher
}

// newRouter mounts the API. fetcher may be nil, in which case requests
// must carry the text.
func newRouter(a rowAnalyzer, f scrape.Fetcher) http.Handler {
	h := &analyzeHandler{analyzer: a, fetcher: f}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/analyze", h.analyze)
	return r
}

func (h *analyzeHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.URL = strings.TrimSpace(req.URL)

	if req.Text == "" {
		if req.URL == "" {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "text or url is required"})
			return
		}
		if h.fetcher == nil {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}
		text, err := h.fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			zap.L().Warn("api fetch failed", zap.String("url", req.URL), zap.Error(err))
			writeJSONStatus(w, http.StatusBadGateway, map[string]string{"error": errFetchFailed})
			return
		}
		req.Text = text
	}

	h.mu.Lock()
	res := h.analyzer.Process(r.Context(), pipeline.Input{URL: req.URL, Text: req.Text})
	h.mu.Unlock()

	writeJSONStatus(w, http.StatusOK, analyzeResponse{
		RunID:   res.RunID,
		Outcome: res.Outcome,
		Record:  res.Record,
		Error:   res.Error,
		Notes:   res.Notes,
	})
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
