// Package bootstrap builds the record store, auth provider and authenticator
// from configuration. It is shared by the server and the admin CLI.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/jonkersai/website/auth"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/authprovider/gotrue"
	"github.com/jonkersai/website/authprovider/oidcpassword"
	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/recordstore/postgrest"
	"github.com/jonkersai/website/recordstore/sqlstore"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store drivers besides the sqlstore ones.
const DriverREST = "rest"

// Provider kinds.
const (
	ProviderGoTrue = "gotrue"
	ProviderOIDC   = "oidc"
)

// Backend is the wired authentication stack.
type Backend struct {
	Store         recordstore.Store
	Provider      authprovider.Provider
	Authenticator *auth.Authenticator
	HTTPClient    *http.Client

	closers []func() error
}

// New opens the store and the provider and builds the authenticator.
func New(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{HTTPClient: &http.Client{Timeout: cfg.GetHTTPTimeout()}}

	store, err := b.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Store = store

	provider, err := b.openProvider(ctx, cfg)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Provider = provider

	b.Authenticator, err = auth.NewAuthenticator(auth.Repos{
		Provider:    provider,
		Credentials: users.NewStoreCredentialRepo(store),
		Store:       store,
	},
		auth.WithAdminDomain(cfg.GetAdminDomainSuffix()),
		auth.WithPasswordStorage(cfg.GetPasswordStorage()),
	)
	if err != nil {
		_ = b.Close()
		return nil, errors.Wrap(err, "[bootstrap.New] authenticator")
	}
	return b, nil
}

func (b *Backend) openStore(ctx context.Context, cfg config.BackendConfig) (recordstore.Store, error) {
	switch driver := cfg.GetStoreDriver(); driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		store, err := sqlstore.Open(ctx, driver, cfg.GetStoreDSN())
		if err != nil {
			return nil, errors.Wrapf(err, "[bootstrap] open %s store", driver)
		}
		b.closers = append(b.closers, store.Close)
		log.Info().Str("driver", driver).Msg("Record store opened")
		return store, nil
	case DriverREST:
		store, err := postgrest.New(cfg.GetStoreURL(), cfg.GetStoreAPIKey(), postgrest.WithHTTPClient(b.HTTPClient))
		if err != nil {
			return nil, errors.Wrap(err, "[bootstrap] rest store")
		}
		log.Info().Str("url", cfg.GetStoreURL()).Msg("Using REST record store")
		return store, nil
	default:
		return nil, fmt.Errorf("[bootstrap] unknown store driver %q", driver)
	}
}

func (b *Backend) openProvider(ctx context.Context, cfg config.BackendConfig) (authprovider.Provider, error) {
	switch kind := cfg.GetProviderKind(); kind {
	case ProviderGoTrue:
		c, err := gotrue.New(cfg.GetProviderURL(), cfg.GetStoreAPIKey(), gotrue.WithHTTPClient(b.HTTPClient))
		if err != nil {
			return nil, errors.Wrap(err, "[bootstrap] gotrue provider")
		}
		return c, nil
	case ProviderOIDC:
		p, err := oidcpassword.New(ctx, cfg.GetOIDCIssuer(), cfg.GetOIDCClientID(), cfg.GetOIDCClientSecret(),
			oidcpassword.WithHTTPClient(b.HTTPClient))
		if err != nil {
			return nil, errors.Wrap(err, "[bootstrap] oidc provider")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("[bootstrap] unknown auth provider %q", kind)
	}
}

// LoginSessions returns a Redis backed repo when redis.addr is set and an
// in-memory one otherwise.
func (b *Backend) LoginSessions(ctx context.Context, cfg config.BackendConfig) (loginsession.Repo, error) {
	if cfg.GetRedisAddr() == "" {
		log.Warn().Msg("redis.addr not set, login sessions are kept in memory")
		return loginsession.NewInMemoryLoginSessionRepo(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[bootstrap] redis ping")
	}
	b.closers = append(b.closers, client.Close)
	return loginsession.NewRedisLoginSessionRepo(client)
}

// Close releases the store and Redis connections.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return stderrors.Join(errs...)
}
