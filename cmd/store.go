package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/resilience"
	"github.com/sells-group/seo-monitor/internal/store"
	"github.com/sells-group/seo-monitor/pkg/gsc"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "seo-monitor.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: database URL is required (SEOMON_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initGSC(c config.GSCConfig, ic config.IngestConfig) (gsc.Client, error) {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil, eris.New("gsc: refresh token or access token is required (SEOMON_GSC_REFRESH_TOKEN)")
	}

	opts := []gsc.Option{
		gsc.WithRetry(resilience.FromRetryConfig(
			ic.RetryAttempts, ic.RetryBackoffMs, ic.RetryMaxBackoff, ic.RetryMultiplier, ic.RetryJitter,
		)),
	}
	if c.InspectBaseURL != "" {
		opts = append(opts, gsc.WithInspectBaseURL(c.InspectBaseURL))
	}
	if c.WebmastersURL != "" {
		opts = append(opts, gsc.WithWebmastersBaseURL(c.WebmastersURL))
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, gsc.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}))
	}

	return gsc.NewClient(gsc.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RefreshToken: c.RefreshToken,
		AccessToken:  c.AccessToken,
	}, opts...), nil
}
