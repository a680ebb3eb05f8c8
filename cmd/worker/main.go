// Package main - точка входа фонового процесса salon-notifier.
//
// Worker отвечает за:
// - периодическую рассылку напоминаний о записях (тик напоминаний)
// - операторский HTTP API: ручной тик, рассылки, история, удаление
// - публикацию событий доставки в журнал и, опционально, в Kafka
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salonhub/salon-notifier/config"
	"github.com/salonhub/salon-notifier/internal/application/command"
	"github.com/salonhub/salon-notifier/internal/application/query"
	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/infrastructure/external/email"
	"github.com/salonhub/salon-notifier/internal/infrastructure/external/sms"
	"github.com/salonhub/salon-notifier/internal/infrastructure/external/telegram"
	"github.com/salonhub/salon-notifier/internal/infrastructure/messaging"
	"github.com/salonhub/salon-notifier/internal/infrastructure/persistence/memory"
	"github.com/salonhub/salon-notifier/internal/infrastructure/persistence/postgres"
	"github.com/salonhub/salon-notifier/internal/infrastructure/persistence/redis"
	"github.com/salonhub/salon-notifier/internal/infrastructure/scheduler"
	"github.com/salonhub/salon-notifier/internal/infrastructure/scheduler/jobs"
	"github.com/salonhub/salon-notifier/internal/infrastructure/service"
	httpapi "github.com/salonhub/salon-notifier/internal/interface/http"
	"github.com/salonhub/salon-notifier/internal/interface/http/handlers"
	"github.com/salonhub/salon-notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand выполняет служебные подкоманды:
//
//	worker migrate [up|down]
//	worker hash-api-key <key>
func runCommand(name string, args []string) error {
	switch name {
	case "hash-api-key":
		if len(args) != 1 {
			return errors.New("usage: worker hash-api-key <key>")
		}
		hash, err := handlers.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil

	case "migrate":
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return errors.New("DATABASE_URL is not set")
		}
		direction := "up"
		if len(args) > 0 {
			direction = args[0]
		}
		switch direction {
		case "up":
			return postgres.RunMigrations(url, slog.Default())
		case "down":
			return postgres.RollbackMigration(url)
		}
		return fmt.Errorf("unknown direction %q, want up or down", direction)
	}
	return fmt.Errorf("unknown command %q", name)
}

// stores объединяет источники данных: postgres или память в разработке.
type stores struct {
	appointments appointment.Repository
	users        appointment.UserDirectory
	settings     settings.Provider
	templates    notification.TemplateStore
	ledger       notification.Ledger
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, logCloser := setupLogger(cfg)
	defer logCloser.Close()

	log.Info("starting salon-notifier worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	// Значения по умолчанию для ключей, которых нет в хранилище настроек.
	defaults := settings.Default()
	defaults.Timezone = cfg.App.Location

	var st stores
	if cfg.Database.URL != "" {
		if cfg.Database.MigrateOnStart {
			log.Info("applying database migrations...")
			if err := postgres.RunMigrations(cfg.Database.URL, log); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info("connecting to database...")
		pgConfig := postgres.DefaultConfig()
		pgConfig.URL = cfg.Database.URL
		pgConfig.MaxConns = int32(cfg.Database.MaxConns)
		pgConfig.MinConns = int32(cfg.Database.MinConns)
		pgConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgConfig.ApplicationName = cfg.App.Name
		conn, err := postgres.NewConnection(ctx, pgConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()
		health.AddCheck("postgres", handlers.NewPingCheck(conn))

		st = stores{
			appointments: postgres.NewAppointmentRepository(conn),
			users:        postgres.NewUserRepository(conn),
			settings:     postgres.NewSettingsRepository(conn, defaults, log),
			templates:    postgres.NewTemplateRepository(conn),
			ledger:       postgres.NewNotificationRepository(conn),
		}
		log.Info("database connection established")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		st = stores{
			appointments: memory.NewAppointments(),
			users:        memory.NewUsers(),
			settings:     memory.NewSettings(defaults),
			templates:    memory.NewTemplates(),
			ledger:       memory.NewLedger(),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. БЛОКИРОВКА ТИКА (Redis или локальная)
	// ─────────────────────────────────────────────────────────────────────────
	var guard scheduler.TickGuard = scheduler.NewLocalTickGuard()
	if !cfg.Redis.Disabled && (cfg.Redis.URL != "" || !cfg.IsDevelopment()) {
		log.Info("connecting to Redis...")
		rc, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   redis.DefaultConfig().MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, tick lock is process-local", "error", err)
		} else {
			defer rc.Close()
			guard = redis.NewTickLock(rc.Redis(), cfg.Redis.TickLockTTL, log)
			health.AddOptionalCheck("redis", handlers.NewPingCheck(rc))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := bus.Subscribe(messaging.NewLogPublisher(log).Handle); err != nil {
		return fmt.Errorf("failed to subscribe log publisher: %w", err)
	}
	if cfg.Kafka.Enabled {
		kp, err := messaging.NewKafkaPublisher(messaging.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer kp.Close()
		if err := bus.Subscribe(kp.Handle); err != nil {
			return fmt.Errorf("failed to subscribe kafka publisher: %w", err)
		}
		log.Info("kafka event stream enabled", "topic", cfg.Kafka.Topic)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. КАНАЛЫ ДОСТАВКИ
	// ─────────────────────────────────────────────────────────────────────────
	router, err := setupChannels(cfg, log)
	if err != nil {
		return err
	}
	health.AddOptionalCheck("channels", handlers.NewBreakerCheck(router.BreakerStates))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПРИЛОЖЕНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	ids := service.NewIDGenerator()
	dispatcher, err := command.NewDispatcher(command.DispatcherConfig{
		Ledger:          st.ledger,
		Templates:       st.templates,
		Users:           st.users,
		Settings:        st.settings,
		Sender:          router,
		Events:          bus,
		NewID:           ids.GenerateID,
		DeliveryTimeout: cfg.Reminder.DeliveryTimeout,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	reminders, err := jobs.NewSendRemindersJob(jobs.SendRemindersDeps{
		Appointments: st.appointments,
		Ledger:       st.ledger,
		Settings:     st.settings,
		Dispatcher:   dispatcher,
		Users:        st.users,
		Guard:        guard,
		Events:       bus,
		Logger:       log,
	}, jobs.SendRemindersConfig{
		Horizon:     cfg.Reminder.Horizon,
		Channel:     notification.Channel(cfg.Reminder.Channel),
		Concurrency: cfg.Reminder.Concurrency,
		Timeout:     cfg.Reminder.TickTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create reminder job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})
	if cfg.Reminder.Enabled {
		if err := scheduleReminders(sched, reminders, cfg, log); err != nil {
			return err
		}
	} else {
		log.Warn("reminder tick disabled, manual trigger only")
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	auth, err := handlers.NewAPIKeyAuth(cfg.HTTP.APIKeyHashes, cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("invalid ADMIN_API_KEY_HASHES: %w", err)
	}
	if !auth.Enabled() {
		log.Warn("operator API is unauthenticated: no api key hashes configured")
	}

	httpConfig := httpapi.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.Version = cfg.App.Version

	server := httpapi.NewServer(httpConfig, httpapi.Dependencies{
		Reminders:           reminders,
		Broadcast:           command.NewBroadcastHandler(dispatcher, st.users),
		DeleteNotifications: command.NewDeleteNotificationsHandler(st.ledger, bus, nil, log),
		BroadcastHistory:    query.NewBroadcastHistoryHandler(st.ledger),
		BroadcastDetail:     query.NewBroadcastDetailHandler(st.ledger),
		UserNotifications:   query.NewUserNotificationsHandler(st.ledger),
		HealthChecker:       health,
		Auth:                auth,
		Logger:              log,
	})
	log.Info("salon-notifier worker is running", "address", httpConfig.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	// Run возвращается после сигнала и остановки HTTP либо при ошибке listen.
	runErr := server.Run(ctx, cfg.App.ShutdownTimeout)
	if runErr != nil {
		log.Error("http server failed", logger.Err(runErr))
	}

	log.Info("stopping background jobs")
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Error("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Observability.LogLevel
	lc.Format = logger.Format(cfg.Observability.LogFormat)
	if lc.Format == "" && cfg.IsProduction() {
		lc.Format = logger.FormatJSON
	}
	lc.File = cfg.Observability.LogFile
	lc.MaxSizeMB = cfg.Observability.LogMaxSizeMB
	lc.MaxBackups = cfg.Observability.LogMaxBackups
	lc.MaxAgeDays = cfg.Observability.LogMaxAgeDays

	log, closer := logger.New(lc)
	log = log.With("app", cfg.App.Name)
	slog.SetDefault(log)
	return log, closer
}

// setupChannels регистрирует транспорты. Без токена Telegram в разработке
// сообщения только пишутся в лог.
func setupChannels(cfg *config.Config, log *slog.Logger) (*service.ChannelRouter, error) {
	router := service.NewChannelRouter(log)

	if cfg.Telegram.Token != "" {
		tc := telegram.DefaultClientConfig(cfg.Telegram.Token)
		tc.BaseURL = cfg.Telegram.BaseURL
		tc.Timeout = cfg.Telegram.Timeout
		tc.ParseMode = cfg.Telegram.ParseMode
		tc.Logger = log
		if err := router.Register(notification.ChannelTelegram, telegram.NewClient(tc)); err != nil {
			return nil, fmt.Errorf("failed to register telegram: %w", err)
		}
	} else {
		dryRun := log.With(logger.Component("telegram_dry_run"))
		err := router.Register(notification.ChannelTelegram, service.TransportFunc(
			func(_ context.Context, address, title, _ string) error {
				dryRun.Info("message not sent: no bot token", "chat_id", address, "title", title)
				return nil
			}))
		if err != nil {
			return nil, fmt.Errorf("failed to register telegram: %w", err)
		}
	}

	if cfg.SMS.URL != "" {
		sc := sms.DefaultClientConfig(cfg.SMS.URL, cfg.SMS.APIKey)
		sc.Sender = cfg.SMS.Sender
		sc.MaxRunes = cfg.SMS.MaxRunes
		sc.Timeout = cfg.SMS.Timeout
		sc.Logger = log
		if err := router.Register(notification.ChannelSMS, sms.NewClient(sc)); err != nil {
			return nil, fmt.Errorf("failed to register sms: %w", err)
		}
	}

	if cfg.Email.Host != "" {
		ec, err := email.NewClient(email.ClientConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create smtp client: %w", err)
		}
		if err := router.Register(notification.ChannelEmail, ec); err != nil {
			return nil, fmt.Errorf("failed to register email: %w", err)
		}
	}

	log.Info("delivery channels configured", "channels", router.Channels())
	return router, nil
}

// scheduleReminders регистрирует тик напоминаний. Простой интервал без
// догоняющего запуска идёт через PeriodicRunner, остальные расписания
// через Register.
func scheduleReminders(sched *scheduler.Scheduler, job *jobs.SendRemindersJob, cfg *config.Config, log *slog.Logger) error {
	if cfg.Reminder.Cron == "" && cfg.Reminder.StartupDelay <= 0 {
		if err := registerPeriodic(sched, job, cfg.Reminder.Interval); err != nil {
			return fmt.Errorf("failed to register reminder job: %w", err)
		}
		log.Info("reminder job scheduled", "every", cfg.Reminder.Interval.String())
		return nil
	}

	schedule, err := reminderSchedule(cfg)
	if err != nil {
		return err
	}
	if err := sched.Register(job, schedule); err != nil {
		return fmt.Errorf("failed to register reminder job: %w", err)
	}
	log.Info("reminder job scheduled", "schedule", schedule.String())
	return nil
}

func registerPeriodic(runner scheduler.PeriodicRunner, job scheduler.Job, every time.Duration) error {
	return runner.RegisterPeriodic(job.Name(), every, job.Run)
}

// reminderSchedule выбирает расписание тика: cron или интервал, с ранним
// догоняющим запуском после старта.
func reminderSchedule(cfg *config.Config) (scheduler.Schedule, error) {
	var base scheduler.Schedule
	if cfg.Reminder.Cron != "" {
		cs, err := scheduler.NewCronSchedule(cfg.Reminder.Cron, cfg.App.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid REMINDER_CRON: %w", err)
		}
		base = cs
	} else {
		base = scheduler.NewIntervalSchedule(cfg.Reminder.Interval)
	}

	if cfg.Reminder.StartupDelay > 0 {
		return scheduler.NewBootstrapSchedule(cfg.Reminder.StartupDelay, base), nil
	}
	return base, nil
}
