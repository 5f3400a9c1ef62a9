package app

import (
	"context"
	"net/http"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/database"
	dbpostgres "peer-match/internal/database/postgres"
	"peer-match/internal/domain/matching"
	"peer-match/internal/infrastructure/cache"
	"peer-match/internal/logger"
	"peer-match/internal/metrics"
	"peer-match/internal/notify"
	"peer-match/internal/pkg/jwt"
	"peer-match/internal/repository"
	"peer-match/internal/usecase"
	ucauth "peer-match/internal/usecase/auth"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stores groups the repositories the usecases depend on.
type Stores struct {
	Members   repository.MemberRepository
	Matches   repository.MatchRepository
	Consents  repository.ConsentRepository
	Reminders repository.ReminderRepository
	Outbox    repository.OutboxRepository
}

func PostgresStores(db database.DB) Stores {
	return Stores{
		Members:   repository.NewPostgresMemberRepository(db),
		Matches:   repository.NewPostgresMatchRepository(db),
		Consents:  repository.NewPostgresConsentRepository(db),
		Reminders: repository.NewPostgresReminderRepository(db),
		Outbox:    repository.NewPostgresOutboxRepository(db),
	}
}

type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       database.DB
	Redis    *cache.Redis
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	JWT      *jwt.HMACService

	Dispatcher *notify.Dispatcher

	MatchRun      *usecase.MatchRun
	Consent       *usecase.Consent
	ReminderSweep *usecase.ReminderSweep
	Redelivery    *usecase.Redelivery
	Auth          *usecase.Auth
}

// NewContainer connects to Postgres and Redis and wires every usecase.
func NewContainer(cfg config.Config, l *zap.Logger) (*Container, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l = logger.OrNop(l)
	db, err := dbpostgres.Connect(ctx, cfg.Database, logger.Component(l, logger.ComponentPostgres))
	if err != nil {
		return nil, err
	}

	c, err := Wire(cfg, PostgresStores(db), cache.NewRedis(cfg.Redis, l), l)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.DB = db
	c.Registry.MustRegister(dbpostgres.NewPoolCollector(db))
	return c, nil
}

// Wire builds the usecases on top of stores. It does not open connections.
func Wire(cfg config.Config, stores Stores, locker *cache.Redis, l *zap.Logger) (*Container, error) {
	l = logger.OrNop(l)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var sender notify.Sender = notify.DisabledSender{}
	if cfg.Notify.BotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify, &http.Client{})
		if err != nil {
			return nil, err
		}
		sender = tg
	} else {
		l.Warn("telegram bot token not set, outbound messages will stay in the outbox")
	}

	templates, err := notify.NewTemplates(cfg.Notify)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(stores.Outbox, sender, m, logger.Component(l, logger.ComponentNotify))

	jwtSvc := jwt.NewHMACService(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiresIn,
		cfg.JWT.RefreshExpiresIn,
	)

	scorer := matching.NewScorer(matching.Weights{
		Skill:           cfg.Matching.SkillWeight,
		Interest:        cfg.Matching.InterestWeight,
		SizeDiffBonus:   cfg.Matching.SizeDiffBonus,
		CooldownPenalty: cfg.Matching.CooldownPenalty,
	})
	matcher := matching.NewGreedyMatcher(scorer, cfg.Matching.ScoringWorkers)

	var verifier *ucauth.Verifier
	if cfg.Notify.BotToken != "" {
		verifier = ucauth.NewVerifier(cfg.Notify.BotToken, cfg.JWT.InitDataMaxAge)
	}

	return &Container{
		Config:     cfg,
		Logger:     l,
		Redis:      locker,
		Registry:   registry,
		Metrics:    m,
		JWT:        jwtSvc,
		Dispatcher: dispatcher,

		MatchRun: usecase.NewMatchRunUsecase(stores.Members, stores.Matches, matcher, locker, cfg.Matching, m, logger.Component(l, logger.ComponentMatchRun)),
		Consent: usecase.NewConsentUsecase(stores.Matches, stores.Consents, stores.Members, dispatcher, templates, locker, m,
			logger.Component(l, logger.ComponentConsent)),
		ReminderSweep: usecase.NewReminderSweepUsecase(stores.Reminders, stores.Matches, stores.Members, dispatcher, templates, locker, m,
			logger.Component(l, logger.ComponentReminders)),
		Redelivery: usecase.NewRedeliveryUsecase(stores.Outbox, dispatcher, locker, cfg.Notify.MaxAttempts, logger.Component(l, logger.ComponentRedelivery)),
		Auth:       usecase.NewAuthUsecase(stores.Members, verifier, jwtSvc),
	}, nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs error
	if c.Redis != nil {
		errs = multierr.Append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = multierr.Append(errs, c.DB.Close())
	}
	return errs
}
