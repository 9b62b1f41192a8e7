package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/metrics"
	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/monitoring"
	"github.com/sells-group/seo-monitor/internal/store"
)

var servePort int

// apiStore is the read-only subset of store.Store served over HTTP.
type apiStore interface {
	Ping(ctx context.Context) error
	Summary(ctx context.Context, business string) (*model.IssueSummary, error)
	ListIssues(ctx context.Context, filter store.IssueFilter) ([]model.IssueRecord, error)
	ListSyncLog(ctx context.Context, business string, limit int) ([]model.SyncLogEntry, error)
	LatestSyncLog(ctx context.Context, business string) (*model.SyncLogEntry, error)
	ListURLs(ctx context.Context, business string) ([]string, error)
	RecentStats(ctx context.Context, business, url string, days int) ([]model.DailyStat, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics.Init()

		if cfg.Business != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Business,
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st, cfg.Business, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API routes. defaultBusiness is used when a
// request omits ?business=.
func buildRouter(st apiStore, defaultBusiness string, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			s, err := st.Summary(r.Context(), business)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, s)
		})

		r.Get("/issues", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			q := r.URL.Query()
			f := store.IssueFilter{
				Business:  business,
				Status:    model.IssueStatus(q.Get("status")),
				Severity:  model.Severity(q.Get("severity")),
				IssueType: model.IssueType(q.Get("type")),
				Limit:     queryInt(q.Get("limit")),
				Offset:    queryInt(q.Get("offset")),
			}
			if (f.Status != "" && !f.Status.Valid()) ||
				(f.Severity != "" && !f.Severity.Valid()) ||
				(f.IssueType != "" && !f.IssueType.Valid()) {
				writeError(w, http.StatusBadRequest, eris.New("invalid status, severity or type filter"))
				return
			}
			issues, err := st.ListIssues(r.Context(), f)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if issues == nil {
				issues = []model.IssueRecord{}
			}
			writeJSON(w, http.StatusOK, issues)
		})

		r.Get("/sync-log", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			limit := queryInt(r.URL.Query().Get("limit"))
			if limit <= 0 {
				limit = 20
			}
			entries, err := st.ListSyncLog(r.Context(), business, limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if entries == nil {
				entries = []model.SyncLogEntry{}
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/sync-log/latest", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			e, err := st.LatestSyncLog(r.Context(), business)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if e == nil {
				writeError(w, http.StatusNotFound, eris.Errorf("no sync runs recorded for %s", business))
				return
			}
			writeJSON(w, http.StatusOK, e)
		})

		r.Get("/pages", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			urls, err := st.ListURLs(r.Context(), business)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if urls == nil {
				urls = []string{}
			}
			writeJSON(w, http.StatusOK, urls)
		})

		// Daily stats for one page, newest first.
		r.Get("/pages/stats", func(w http.ResponseWriter, r *http.Request) {
			business, ok := requireBusiness(w, r, defaultBusiness)
			if !ok {
				return
			}
			url := r.URL.Query().Get("url")
			if url == "" {
				writeError(w, http.StatusBadRequest, eris.New("url is required"))
				return
			}
			days := queryInt(r.URL.Query().Get("days"))
			if days <= 0 {
				days = 8
			}
			stats, err := st.RecentStats(r.Context(), business, url, days)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if stats == nil {
				stats = []model.DailyStat{}
			}
			writeJSON(w, http.StatusOK, stats)
		})
	})

	return r
}

func requireBusiness(w http.ResponseWriter, r *http.Request, def string) (string, bool) {
	b := r.URL.Query().Get("business")
	if b == "" {
		b = def
	}
	if b == "" {
		writeError(w, http.StatusBadRequest, eris.New("business is required"))
		return "", false
	}
	return b, true
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
