package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/storefront/storefront-sync/internal/cache"
	"github.com/storefront/storefront-sync/internal/config"
	"github.com/storefront/storefront-sync/internal/gateway"
	"github.com/storefront/storefront-sync/internal/lifecycle"
	"github.com/storefront/storefront-sync/internal/observe"
	"github.com/storefront/storefront-sync/internal/session"
	"github.com/storefront/storefront-sync/internal/storefront"
)

// App is a fully wired storefront client: one session, one gateway and one
// cache shared by every call.
type App struct {
	Session *session.Store
	Gateway *gateway.Gateway
	Cache   *cache.Cache
	Client  *storefront.Client

	hooks lifecycle.Hooks
}

// New wires the client from configuration. The session is rehydrated before
// New returns, so the first request never waits on bootstrap. Close releases
// everything New acquired.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}

	// configure telemetry, including instrumenting the outbound transport
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	a.hooks.OnClose("telemetry", shutdownTelemetry)

	a.Session = session.NewStore()
	a.bootstrapSession(ctx, cfg.Session)

	transport := observe.HTTPTransport(configureHTTPTransport(cfg.API), cfg.Observe)

	a.Gateway, err = gateway.New(cfg.API, a.Session, gateway.WithTransport(transport))
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("gateway configuration failed: %w", err)
	}
	a.hooks.OnCloseFunc("http connections", a.Gateway.CloseIdleConnections)

	a.Cache, err = cache.New(cfg.Cache)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("cache configuration failed: %w", err)
	}
	a.hooks.OnCloseFunc("cache", a.Cache.Purge)

	a.Client = storefront.NewClient(a.Gateway, a.Cache)

	return a, nil
}

// bootstrapSession restores a persisted session and keeps the file in step
// with later changes. Without a session file the store starts logged out.
func (a *App) bootstrapSession(ctx context.Context, cfg config.SessionConfig) {
	if cfg.File == "" {
		a.Session.Clear()
		return
	}

	persister := session.NewFilePersister(cfg.File)

	// an unreadable file is not fatal: the caller starts logged out
	if err := a.Session.Rehydrate(ctx, persister); err != nil {
		log.Warn().Err(err).Str("file", cfg.File).Msg("session: starting logged out")
	}

	a.hooks.OnCloseFunc("session persistence", a.Session.Persist(ctx, persister))
}

// Close releases the resources acquired by New. It is safe to call more than
// once.
func (a *App) Close(ctx context.Context) error {
	return a.hooks.Close(ctx)
}

func configureHTTPTransport(cfg config.APIConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
