// Command magiclinkd serves magic link issuance and redemption over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	magiclink "github.com/goliatone/go-magiclink"
	"github.com/goliatone/go-magiclink/adapter/securelink"
	"github.com/goliatone/go-magiclink/config"
	"github.com/goliatone/go-magiclink/events"
	"github.com/goliatone/go-magiclink/migrations"
	"github.com/goliatone/go-magiclink/notify"
	"github.com/goliatone/go-magiclink/pkg/logging"
	"github.com/goliatone/go-magiclink/pkg/storage"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-magiclink/ratelimit"
	"github.com/goliatone/go-magiclink/session"
	"github.com/goliatone/go-magiclink/sweeper"
	"github.com/goliatone/go-magiclink/tokens"
	"github.com/goliatone/go-magiclink/transport/httpapi"
	"github.com/goliatone/go-magiclink/users"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := logging.NewZapLogger(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewAdapter(zl)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	tokenStore, err := tokens.NewRepository(tokens.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	userStore, err := users.NewRepository(users.RepositoryConfig{DB: db})
	if err != nil {
		return err
	}
	txManager, err := storage.NewTxManager(db, nil)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLimiter()

	transports, closeTransports, err := newTransports(cfg, zl.Named("notify"), logger)
	if err != nil {
		return err
	}
	defer closeTransports()

	dispatcher := notify.NewDispatcher(notify.Config{
		Transports: transports,
		Defaults:   cfg.DefaultChannels(),
		Available:  cfg.AvailableChannels(),
		Templates:  cfg.Templates(),
		Logger:     logger,
	})

	guards := cfg.GuardTable()
	links, err := securelink.NewProvider(securelink.ProviderConfig{
		Base: securelink.Config{
			SigningKey: cfg.SigningKey,
			BaseURL:    cfg.BaseURL,
			QueryKey:   securelink.DefaultQueryKey,
			Routes:     map[string]string{securelink.RouteVerify: cfg.Routes.Verify},
			AsQuery:    true,
		},
		Guards:            guards,
		DefaultExpiration: cfg.Expiration(),
		GuardPath: func(guard string) string {
			return httpapi.GuardPath(cfg.Routes.Verify, guard)
		},
	})
	if err != nil {
		return err
	}

	bus := events.NewBus()
	bus.Subscribe(events.LoggingObserver(logger, events.DefaultMasker()))

	sessions := scs.New()
	sessions.Lifetime = cfg.SessionLifetime()
	sessions.Cookie.Secure = cfg.HTTP.SecureCookies
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	authenticator, err := session.NewAuthenticator(sessions)
	if err != nil {
		return err
	}

	svc := magiclink.New(magiclink.Config{
		Tokens:        tokenStore,
		Tx:            txManager,
		Users:         userStore,
		Hasher:        users.BcryptHasher{},
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Dispatcher:    dispatcher,
		SecureLinks:   links,
		Guards:        guards,
		Events:        bus,
		Logger:        logger,
		Expiration:    cfg.Expiration(),
		MaxAttempts:   cfg.Throttle.MaxAttempts,
		Decay:         cfg.Decay(),
	})
	if err := svc.HealthCheck(ctx); err != nil {
		return err
	}

	sweep, err := sweeper.New(svc, cfg.Cleanup.Schedule, logger)
	if err != nil {
		return err
	}
	if err := sweep.Start(ctx); err != nil {
		return err
	}
	defer sweep.Stop()

	handler, err := httpapi.NewHandler(httpapi.Config{
		Service:      svc,
		Sessions:     sessions,
		RequestPath:  cfg.Routes.Request,
		VerifyPath:   cfg.Routes.Verify,
		LoginPath:    cfg.Routes.Login,
		DefaultGuard: defaultGuard(guards),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("magiclinkd: listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("magiclinkd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	var (
		sqlDB   *sql.DB
		dialect schema.Dialect
		err     error
	)
	switch migrations.NormalizeDialect(cfg.Driver) {
	case "postgres":
		sqlDB, err = sql.Open("postgres", cfg.DSN)
		dialect = pgdialect.New()
	case "sqlite":
		sqlDB, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("magiclinkd: unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	persistence.RegisterModel((*tokens.Record)(nil))
	persistence.RegisterModel((*users.Record)(nil))

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		return nil, err
	}
	for _, fsys := range migrations.Filesystems() {
		client.RegisterDialectMigrations(
			fsys,
			persistence.WithDialectSourceLabel("."),
			persistence.WithValidationTargets("postgres", "sqlite"),
		)
	}
	if err := client.Migrate(ctx); err != nil {
		return nil, err
	}
	if err := migrations.ValidateSchema(ctx, sqlDB, cfg.Driver); err != nil {
		return nil, err
	}
	return client.DB(), nil
}

func newRateLimiter(ctx context.Context, cfg config.RedisConfig) (types.RateLimiter, func(), error) {
	if cfg.Addr == "" {
		return ratelimit.NewMemoryLimiter(nil), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("magiclinkd: redis: %w", err)
	}
	limiter, err := ratelimit.NewRedisLimiter(client, cfg.Prefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return limiter, func() { _ = client.Close() }, nil
}

// newTransports delivers mail over SMTP when a host is configured and
// whatsapp/sms through AMQP queues when a broker is configured. Channels
// without a transport are left out so the dispatcher fails closed; with
// notify.log_fallback they are written to the log instead.
func newTransports(cfg *config.Config, zl *zap.Logger, logger types.Logger) (map[types.Channel]notify.Transport, func(), error) {
	transports := map[types.Channel]notify.Transport{}
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Mail.SMTPHost != "" {
		smtpTransport, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.FromAddress,
		})
		if err != nil {
			return nil, nil, err
		}
		transports[types.ChannelMail] = smtpTransport
	}

	if cfg.AMQP.URL != "" {
		conn, err := amqp091.Dial(cfg.AMQP.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("magiclinkd: amqp: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		ch, err := conn.Channel()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = ch.Close() })

		queues := map[types.Channel]string{
			types.ChannelWhatsApp: cfg.AMQP.WhatsAppQueue,
			types.ChannelSMS:      cfg.AMQP.SMSQueue,
		}
		for _, name := range queues {
			if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
				closeAll()
				return nil, nil, err
			}
		}
		queueTransport, err := notify.NewQueueTransport(notify.QueueConfig{
			Publisher: ch,
			Exchange:  cfg.AMQP.Exchange,
			Queues:    queues,
			Logger:    logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		transports[types.ChannelWhatsApp] = queueTransport
		transports[types.ChannelSMS] = queueTransport
	}

	var fallback *notify.LogTransport
	for _, channel := range types.AllChannels() {
		if _, ok := transports[channel]; ok {
			continue
		}
		if !cfg.Notify.LogFallback {
			logger.Info("magiclinkd: channel has no transport", "channel", string(channel))
			continue
		}
		if fallback == nil {
			fallback = notify.NewLogTransport(zl)
		}
		logger.Info("magiclinkd: channel writes links to the log", "channel", string(channel))
		transports[channel] = fallback
	}
	return transports, closeAll, nil
}

func defaultGuard(guards types.Guards) string {
	if _, ok := guards.Lookup(httpapi.DefaultGuard); ok {
		return httpapi.DefaultGuard
	}
	if names := guards.Names(); len(names) > 0 {
		return names[0]
	}
	return ""
}
