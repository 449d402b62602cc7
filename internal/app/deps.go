package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/accounts"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/config"
	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/handlers"
	"github.com/kinship/backend/internal/middleware"
	"github.com/kinship/backend/internal/observability"
	"github.com/kinship/backend/internal/relationships"
	"github.com/kinship/backend/internal/repositories"
	"github.com/kinship/backend/internal/storage"
)

// backend is the account and session persistence selected by StoreDriver.
type backend struct {
	accounts repositories.AccountRepository
	sessions auth.SessionStore
	health   handlers.Pinger
	close    func(context.Context) error
}

type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return backend{}, err
		}
		return backend{
			accounts: repositories.NewPostgresAccountRepository(pool),
			sessions: repositories.NewPostgresSessionStore(pool),
			health:   pool,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.StoreDriverMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return backend{}, err
		}
		repo := repositories.NewMongoAccountRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return backend{}, err
		}
		// Refresh sessions are process-local on this driver.
		return backend{
			accounts: repo,
			sessions: auth.NewInMemorySessionStore(),
			health:   mongoPinger{client: client},
			close:    client.Disconnect,
		}, nil

	case config.StoreDriverMemory:
		return backend{
			accounts: repositories.NewInMemoryAccountRepository(),
			sessions: auth.NewInMemorySessionStore(),
			close:    func(context.Context) error { return nil },
		}, nil

	default:
		return backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildDependencies wires together concrete implementations used by the HTTP handlers. The
// returned cleanup releases the connections opened here, not those owned by store.
func buildDependencies(ctx context.Context, store backend, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	var closers []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	sessions := auth.NewManager(auth.Options{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, store.sessions)

	var blobs accounts.BlobStore
	if cfg.ObjectStore.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		blobs = s3Store
	} else {
		blobs = storage.NewMemoryStore(cfg.ObjectStore.PublicBaseURL)
	}

	var cache accounts.SummaryCache
	if cfg.RedisURL != "" {
		client, err := accounts.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		closers = append(closers, func(context.Context) error { return client.Close() })
		cache = accounts.NewRedisCache(client, cfg.SummaryCacheTTL)
	} else {
		cache = accounts.NewMemoryCache(cfg.SummaryCacheTTL)
	}

	service, err := accounts.NewService(accounts.Dependencies{
		Store:  store.accounts,
		Hasher: auth.BcryptHasher{},
		Tokens: sessions,
		Blobs:  blobs,
		Cache:  cache,
	})
	if err != nil {
		_ = cleanup(ctx)
		return handlers.Dependencies{}, nil, err
	}

	return handlers.Dependencies{
		Accounts:       service,
		Sessions:       sessions,
		Relationships:  relationships.NewEngine(store.accounts, relationships.WithSummarySource(service)),
		Access:         access.NewControl(sessions, store.accounts),
		Health:         store.health,
		Metrics:        observability.Handler(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, cleanup, nil
}

// newHandler builds the routed, logged HTTP handler.
func newHandler(logger *slog.Logger, deps handlers.Dependencies) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	return middleware.RequestLogger(logger)(mux)
}
