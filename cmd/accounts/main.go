package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/interaction"
	"github.com/goliatone/go-accounts/notify"
	"github.com/goliatone/go-accounts/repository"
	"github.com/goliatone/go-accounts/session"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type App struct {
	cfg        *config.Config
	db         *bun.DB
	rdb        *redis.Client
	publisher  notify.Publisher
	dispatcher *accounts.Dispatcher
	repo       accounts.RepositoryManager
	srv        router.Server[*fiber.App]
	logger     accounts.Logger
	zap        *zap.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zl, err := accounts.InitZap(cfg.Log.Level, cfg.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{cfg: cfg, zap: zl, logger: accounts.NewZapLogger(zl, "accounts")}
	if err := app.run(ctx); err != nil {
		app.logger.Error("accounts service stopped with error", "error", err)
		os.Exit(1)
	}
}

func (a *App) run(ctx context.Context) error {
	defer a.close()

	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	if err := a.setupRedis(ctx); err != nil {
		return err
	}
	a.setupNotifications()

	if err := a.bootstrapRoles(ctx); err != nil {
		return err
	}

	a.setupServer()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("accounts service listening", "addr", a.cfg.HTTP.Addr)
		errCh <- a.srv.Serve(a.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down accounts service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("notification drain: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) setupDatabase(ctx context.Context) error {
	db, err := repository.Open(a.cfg.DB.Driver, a.cfg.DB.DSN)
	if err != nil {
		return err
	}
	a.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if a.cfg.DB.CreateSchema {
		if err := repository.CreateSchema(ctx, db); err != nil {
			return err
		}
	}

	a.repo = repository.NewRepositoryManager(db)
	return a.repo.Validate()
}

func (a *App) setupRedis(ctx context.Context) error {
	a.rdb = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (a *App) setupNotifications() {
	a.publisher = notify.LogPublisher{Logger: a.logger}
	if a.cfg.AMQP.URL != "" {
		pub, err := notify.NewAMQPPublisher(a.cfg.AMQP.URL, a.cfg.AMQP.DialTimeout, a.logger)
		if err != nil {
			a.logger.Warn("amqp unavailable, notifications will only be logged", "error", err)
		} else {
			a.publisher = pub
		}
	}

	notifier := notify.NewNotifier(a.publisher,
		notify.WithExchange(a.cfg.AMQP.Exchange),
		notify.WithFrontendAddress(a.cfg.FrontendAddress),
	)
	a.dispatcher = accounts.NewDispatcher(notifier, a.cfg.AMQP.DispatchTimeout, a.logger)
}

func (a *App) bootstrapRoles(ctx context.Context) error {
	for _, name := range a.cfg.BootstrapRoles {
		if _, err := a.repo.Roles().EnsureRole(ctx, name); err != nil {
			return fmt.Errorf("bootstrap role %s: %w", name, err)
		}
		a.logger.Debug("role ensured", "role", name)
	}
	return nil
}

func (a *App) setupServer() {
	cfg := a.cfg
	activity := accounts.LoggerActivitySink{Logger: a.logger}

	assembler := accounts.NewClaimsAssembler(a.repo.Claims())

	authenticator := accounts.NewSessionAuthenticator(a.repo.Credentials(), assembler,
		accounts.WithLockoutPolicy(cfg.Lockout.LockoutPolicy),
		accounts.WithAuthenticatorActivitySink(activity),
		accounts.WithAuthenticatorLogger(a.logger),
	)

	tokens := accounts.NewSessionTokenService([]byte(cfg.Session.SigningKey), cfg.Session.Issuer, a.logger)
	sessions := accounts.NewCookieSessions(tokens,
		session.NewRedisStoreWithPrefix(a.rdb, cfg.Redis.SessionPrefix),
		cfg.Session.CookieConfig,
		a.logger,
	)

	interactions := accounts.NewInteractionService(
		interaction.NewRedisStore(a.rdb,
			interaction.WithPrefix(cfg.Redis.InteractionPrefix),
			interaction.WithTTL(cfg.Redis.InteractionTTL),
		),
	).WithActivitySink(activity).WithLogger(a.logger)

	controller := accounts.NewAccountsController(accounts.AccountsController{
		Authenticator: authenticator,
		Sessions:      sessions,
		Interactions:  interactions,
		Profiles:      accounts.NewProfileService(a.repo.Credentials(), assembler),
		Accounts: accounts.NewAccountService(a.repo, a.dispatcher).
			WithPhoneRegion(cfg.PhoneRegion).
			WithActivitySink(activity).
			WithLogger(a.logger),
		Register: accounts.NewRegisterUserHandler(a.repo, a.dispatcher).
			WithPasswordPolicy(cfg.Password).
			WithPhoneRegion(cfg.PhoneRegion).
			WithHashid(cfg.UseHashid).
			WithActivitySink(activity).
			WithLogger(a.logger),
		ChangePassword: accounts.NewChangePasswordHandler(a.repo).
			WithPasswordPolicy(cfg.Password).
			WithActivitySink(activity).
			WithLogger(a.logger),
		ResetPassword: accounts.NewInitializePasswordResetHandler(a.repo, a.dispatcher).
			WithActivitySink(activity).
			WithLogger(a.logger),
		FinalizeReset: accounts.NewFinalizePasswordResetHandler(a.repo).
			WithPasswordPolicy(cfg.Password).
			WithActivitySink(activity).
			WithLogger(a.logger),
		Confirmations: accounts.NewConfirmContactHandler(a.repo).
			WithActivitySink(activity).
			WithLogger(a.logger),
	},
		accounts.WithControllerLogger(a.logger),
		accounts.WithLockoutThreshold(cfg.Lockout.Threshold),
		accounts.WithFrontendAddress(cfg.FrontendAddress),
	)

	a.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               "go-accounts",
			ReadTimeout:           cfg.HTTP.ReadTimeout,
			WriteTimeout:          cfg.HTTP.WriteTimeout,
			DisableStartupMessage: !cfg.Dev,
		})
		app.Use(recover.New())
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins(),
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept",
		}))
		return app
	})

	r := a.srv.Router()
	r.Get("/healthz", func(c router.Context) error {
		if err := a.db.PingContext(c.Context()); err != nil {
			return c.Status(http.StatusServiceUnavailable).SendString("")
		}
		return c.Status(http.StatusNoContent).SendString("")
	}).SetName("healthz")

	accounts.RegisterAccountsRoutes(r, controller)
}

func (a *App) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
