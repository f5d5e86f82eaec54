package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/admaesmo/aiddiag/internal/adapter/cache"
	"github.com/admaesmo/aiddiag/internal/audit"
	"github.com/admaesmo/aiddiag/internal/bootstrap"
	"github.com/admaesmo/aiddiag/internal/config"
	httptransport "github.com/admaesmo/aiddiag/internal/http"
	"github.com/admaesmo/aiddiag/internal/http/handler"
	httpmiddleware "github.com/admaesmo/aiddiag/internal/http/middleware"
	"github.com/admaesmo/aiddiag/internal/jwks"
	apimiddleware "github.com/admaesmo/aiddiag/internal/middleware"
	"github.com/admaesmo/aiddiag/internal/password"
	"github.com/admaesmo/aiddiag/internal/repository"
	"github.com/admaesmo/aiddiag/internal/server"
	"github.com/admaesmo/aiddiag/internal/service"
	"github.com/admaesmo/aiddiag/internal/telemetry"
	"github.com/admaesmo/aiddiag/internal/tenant"
	"github.com/admaesmo/aiddiag/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newTenantRepository,
			newUserRepository,
			newRoleRepository,
			newAuditRepository,
			newRedisClient,
			newTenantCache,
			newTenantResolver,
			newHasher,
			newKeySource,
			jwks.NewResolver,
			newIssuer,
			newVerifier,
			newAuditRecorder,
			service.NewAuthService,
			newAuthHandler,
			newAuthMiddleware,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureDemoData, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTenantRepository(pool *pgxpool.Pool) repository.TenantRepository {
	return repository.NewPostgresTenantRepo(pool)
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRoleRepository(pool *pgxpool.Pool) repository.RoleRepository {
	return repository.NewPostgresRoleRepo(pool)
}

func newAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return repository.NewPostgresAuditRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// The tenant cache is best-effort; run without it.
		logger.Warn("redis unavailable, tenant cache disabled", zap.Error(err))
		_ = client.Close()
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func newTenantCache(client redis.UniversalClient) tenant.Cache {
	if client == nil {
		return nil
	}
	return cacheadapter.NewRedisTenantCache(client)
}

func newTenantResolver(repo repository.TenantRepository, cache tenant.Cache, cfg config.Config, logger *zap.Logger) *tenant.Resolver {
	return tenant.NewResolver(repo, cache, cfg.TenantCacheTTL, logger)
}

func newHasher(cfg config.Config) (*password.Hasher, error) {
	return password.NewHasher(password.Mode(cfg.PasswordHashMode))
}

func newKeySource(cfg config.Config) jwks.Source {
	// JWT_PUBLIC_JWKS_PATH may point at a remote JWKS endpoint instead of a
	// file on disk.
	if strings.HasPrefix(cfg.JWKSPath, "http://") || strings.HasPrefix(cfg.JWKSPath, "https://") {
		return &jwks.HTTPSource{URL: cfg.JWKSPath}
	}
	return &jwks.FileSource{Path: cfg.JWKSPath}
}

func newIssuer(cfg config.Config) (*token.Issuer, error) {
	return token.LoadIssuer(cfg.PrivateKeyPath, cfg.DefaultKeyID, cfg.Issuer, cfg.Audience, cfg.AccessTokenTTL)
}

func newVerifier(resolver *jwks.Resolver, cfg config.Config) *token.Verifier {
	return token.NewVerifier(resolver, cfg.Issuer, cfg.Audience)
}

func newAuditRecorder(repo repository.AuditRepository, node *snowflake.Node, logger *zap.Logger) *audit.Recorder {
	return audit.NewRecorder(repo, node, logger)
}

func newAuthHandler(auth *service.AuthService, resolver *jwks.Resolver, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, resolver, logger)
}

func newAuthMiddleware(verifier *token.Verifier, logger *zap.Logger) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(verifier, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
