// Package server assembles the AuthKeeper backend: it picks the store and
// the mail pipeline from configuration, then runs the REST API, the gRPC
// health endpoint and the expiry sweeper until the context ends.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/secrets"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

var (
	openDB = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }

	newRedisClient = func(addr, password string) redis.UniversalClient {
		return redis.NewClient(&redis.Options{Addr: addr, Password: password})
	}
)

// drainTimeout bounds how long queued mail may delay shutdown.
const drainTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      redis.UniversalClient
	pinger     pinger
	sessions   *services.SessionService
	sweeper    *services.Sweeper
	dispatcher *notify.Dispatcher
	issuer     *auth.Issuer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	app := &App{
		config: c,
		logger: logging.New(c.LogLevel, c.LogFormat, os.Stdout),
	}

	var (
		db    dbx.DBTX
		tx    dbx.Transactor
		repos repomanager.RepositoryManager
	)

	switch c.StoreKind {
	case config.StoreMemory:
		m := memory.NewManager()
		tx, repos = m, m
	default:
		sqlDB, err := openDB(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = sqlDB
		app.pinger = append(app.pinger, sqlDB)

		var opts []repomanager.Option
		if c.ChallengeStore == config.ChallengeStoreRedis {
			app.redis = newRedisClient(c.RedisAddr, c.RedisPassword)
			app.pinger = append(app.pinger, redisPinger{app.redis})
			opts = append(opts, repomanager.WithRedisChallenges(app.redis, c.OTPValidityDuration))
		}

		pm := repomanager.NewPostgresRepositoryManager(opts...)
		if err := pm.RunMigrations(ctx, sqlDB); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		db, tx, repos = sqlDB, dbx.NewSQLTransactor(sqlDB, nil), pm
	}

	hasher, err := secrets.NewHasher(c.PasswordHashAlgorithm, c.BcryptCost)
	if err != nil {
		app.Close()
		return nil, err
	}

	notifier, err := app.buildNotifier(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.dispatcher = notify.NewDispatcher(notifier, app.logger, notify.DefaultDispatcherOptions)

	app.issuer = auth.NewIssuer([]byte(c.SecretKey), c.TokenIssuer, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	app.sessions = services.NewSessionService(db, tx, repos, app.issuer, hasher, app.dispatcher, c, app.logger)
	app.sweeper = services.NewSweeper(db, repos, c.CleanupInterval, app.logger)

	return app, nil
}

func (app *App) buildNotifier(ctx context.Context) (notify.Notifier, error) {
	c := app.config

	var n notify.Notifier
	switch c.Mailer {
	case config.MailerSMTP:
		smtp, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUser,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
			Timeout:  notify.DefaultDispatcherOptions.SendTimeout,
		})
		if err != nil {
			return nil, err
		}
		n = smtp
	default:
		n = notify.NewLogNotifier(app.logger)
	}

	if !c.MailArchive {
		return n, nil
	}

	client, err := notify.NewS3Client(ctx, notify.S3Config{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return notify.NewS3Archive(n, client, c.S3Bucket, c.MailFrom, app.logger), nil
}

func (app *App) pingerOrNil() httpapi.Pinger {
	if len(app.pinger) == 0 {
		return nil
	}
	return app.pinger
}

// Run serves until ctx is cancelled, a termination signal arrives or one
// of the servers fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreKind, "mailer", app.config.Mailer)

	httpServer := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.sessions, app.issuer, app.pingerOrNil())
	grpcServer := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.pingerOrNil())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(ctx) })
	g.Go(func() error { return grpcServer.Run(ctx) })
	g.Go(func() error {
		app.sweeper.Run(ctx)
		return nil
	})

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := app.dispatcher.Close(drainCtx); derr != nil {
		app.logger.Warn(drainCtx, "mail queue not drained", "error", derr)
	}

	app.logger.Info(drainCtx, "App stopped")
	return err
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Warn(context.Background(), "close", "error", err)
	}
}

type pinger []httpapi.Pinger

func (p pinger) PingContext(ctx context.Context) error {
	for _, x := range p {
		if err := x.PingContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

type redisPinger struct{ c redis.UniversalClient }

func (r redisPinger) PingContext(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}
