// Package psmanager собирает HTTP-сервис учёта игровых сессий: хранилище,
// кеш, брокер событий, метрики, сервисы и маршруты.
package psmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ps-manager/internal/cache"
	"github.com/magabrotheeeer/ps-manager/internal/config"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/health"
	"github.com/magabrotheeeer/ps-manager/internal/lib/clock"
	"github.com/magabrotheeeer/ps-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/ps-manager/internal/lib/password"
	"github.com/magabrotheeeer/ps-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
	"github.com/magabrotheeeer/ps-manager/internal/metrics"
	"github.com/magabrotheeeer/ps-manager/internal/migrations"
	"github.com/magabrotheeeer/ps-manager/internal/services/account"
	"github.com/magabrotheeeer/ps-manager/internal/services/authz"
	"github.com/magabrotheeeer/ps-manager/internal/services/billing"
	"github.com/magabrotheeeer/ps-manager/internal/services/device"
	"github.com/magabrotheeeer/ps-manager/internal/services/session"
	"github.com/magabrotheeeer/ps-manager/internal/services/shop"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
	"github.com/magabrotheeeer/ps-manager/internal/storage/memory"
	"github.com/magabrotheeeer/ps-manager/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// Store — всё, что сервисам нужно от хранилища. Реализуется
// repository.Storage и memory.Storage.
type Store interface {
	storage.UnitOfWork
	session.Reader
	device.Repository
	shop.Repository
	account.UserRepository
}

// App хранит собранное приложение.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	closers []func() error
}

// New подключает внешние зависимости по конфигу и собирает маршруты.
// Redis и RabbitMQ необязательны: пустой адрес заменяет их заглушками.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "psmanager.New"
	a := &App{logger: logger}
	checks := map[string]health.Checker{}

	store, err := a.openStorage(ctx, cfg, checks)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sessionCache session.Cache = cache.Noop{}
	if cfg.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, redisCache.Close)
		checks["redis"] = redisCache.Ping
		sessionCache = redisCache
		logger.Info("session cache enabled", slog.String("address", cfg.AddressRedis))
	}

	var events session.EventPublisher = rabbitmq.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := a.openBroker(cfg.RabbitMQ)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = publisher
		logger.Info("session events enabled", slog.String("exchange", rabbitmq.ExchangeName))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	svc := buildServices(cfg, logger, Deps{
		Store:   store,
		Cache:   sessionCache,
		Events:  events,
		Metrics: collector,
	})

	router := chi.NewRouter()
	RegisterRoutes(router, logger, svc, Infra{
		Metrics:  collector,
		Gatherer: reg,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		Checks:   checks,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, checks map[string]health.Checker) (Store, error) {
	if cfg.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	checks["postgres"] = db.CheckDatabaseReady
	return db, nil
}

func (a *App) openBroker(cfg config.RabbitMQ) (*rabbitmq.EventPublisher, error) {
	conn, err := rabbitmq.Connect(cfg.URL, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.EventQueues())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ch.Close)
	go a.watchBroker(conn)

	return rabbitmq.NewEventPublisher(ch, rabbitmq.ExchangeName), nil
}

// watchBroker логирует потерю соединения с брокером. Публикация после
// обрыва возвращает ошибку, которую сервис сессий только логирует.
func (a *App) watchBroker(conn *amqp.Connection) {
	if err := <-conn.NotifyClose(make(chan *amqp.Error, 1)); err != nil {
		a.logger.Error("rabbitmq connection closed", slog.String("reason", err.Reason))
	}
}

// Deps собирает внешние зависимости сервисов.
type Deps struct {
	Store   Store
	Cache   session.Cache
	Events  session.EventPublisher
	Metrics session.Metrics
	Clock   clock.Clock
}

// Services обслуживают маршруты API.
type Services struct {
	Accounts *account.Directory
	Devices  *device.Service
	Shops    *shop.Service
	Sessions *session.Service
	Policy   authz.Policy
}

func buildServices(cfg *config.Config, logger *slog.Logger, d Deps) *Services {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	guard := authz.NewGuard(authz.Policy{
		TenantScoping:       cfg.TenantScoping,
		PasswordChangeScope: authz.PasswordChangeScope(cfg.PasswordChangeScope),
	})

	ledger := session.NewLedger(d.Store, d.Store, billing.New(), session.DeleteMode(cfg.SessionDeleteMode))

	return &Services{
		Accounts: account.NewDirectory(account.Deps{
			Users:                       d.Store,
			Shops:                       d.Store,
			Hasher:                      password.NewHasher(cfg.BcryptCost),
			Tokens:                      jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL),
			Guard:                       guard,
			SelfRegistrationGrantsAdmin: cfg.SelfRegistrationGrantsAdmin,
			Log:                         logger,
		}),
		Devices: device.NewService(d.Store, d.Store, guard, logger),
		Shops:   shop.NewService(d.Store, guard, logger),
		Sessions: session.NewService(session.Deps{
			Ledger:   ledger,
			Devices:  d.Store,
			Guard:    guard,
			Clock:    d.Clock,
			Cache:    d.Cache,
			CacheTTL: cfg.SessionTTL,
			Events:   d.Events,
			Metrics:  d.Metrics,
			Log:      logger,
		}),
		Policy: guard.Policy(),
	}
}

// Handler возвращает корневой обработчик HTTP.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run обслуживает HTTP до отмены ctx, затем корректно останавливает сервер
// и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

// close закрывает ресурсы в обратном порядке открытия.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
