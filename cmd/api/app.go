package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/ai"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/config"
	"github.com/residencyreview/eras-review-api/internal/database"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/handlers"
	"github.com/residencyreview/eras-review-api/internal/logging"
	"github.com/residencyreview/eras-review-api/internal/payments"
	"github.com/residencyreview/eras-review-api/internal/seo"
	"github.com/residencyreview/eras-review-api/internal/social"
	"github.com/sirupsen/logrus"
)

// app is every long-lived dependency, built once per command.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	db         *sqlx.DB
	dbReadOnly *sqlx.DB
	ai         *ai.AIService
	cache      cache.Cache
	mailer     *email.Mailer
	site       seo.Site
	posts      *blog.Store
	generator  *blog.Generator
	closers    []func() error
}

// newApp loads config and connects everything. Optional services whose
// keys are missing fall back to placeholders so local development still boots.
func newApp(ctx context.Context) (*app, error) {
	// 1. --- Config & Logging ---
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	a := &app{cfg: cfg, log: log}

	// 2. --- Main Database Connection (Read/Write) ---
	a.db, err = database.OpenDB(cfg.DBDSNPrimary)
	if err != nil {
		return nil, fmt.Errorf("connect to primary database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	// 3. --- AI Database Connection (Read-Only, optional) ---
	if cfg.DBDSNReadOnly != "" {
		a.dbReadOnly, err = database.OpenDB(cfg.DBDSNReadOnly)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to read-only database: %w", err)
		}
		a.closers = append(a.closers, a.dbReadOnly.Close)
	}

	// 4. --- AI Service (optional) ---
	if cfg.GeminiAPIKey != "" {
		a.ai, err = ai.NewAIService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, a.dbReadOnly, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init ai service: %w", err)
		}
		a.closers = append(a.closers, a.ai.Close)
	} else {
		log.Warn("GEMINI_API_KEY not set: blog generation and insights are disabled")
	}

	// 5. --- Cache ---
	a.cache = cache.Noop{}
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, caching disabled")
		} else {
			a.cache = r
			a.closers = append(a.closers, r.Close)
		}
	}

	// 6. --- Email ---
	var sender email.Sender = email.LogSender{Log: log}
	if cfg.ResendAPIKey != "" {
		sender = email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		log.Warn("RESEND_API_KEY not set: emails will only be logged")
	}
	a.mailer, err = email.NewMailer(sender, cfg.SiteName, cfg.FrontendURL, cfg.AdminEmail)
	if err != nil {
		a.close()
		return nil, err
	}

	// 7. --- Blog & SEO ---
	a.site = seo.Site{
		Name:        cfg.SiteName,
		URL:         cfg.FrontendURL,
		Description: "Physician-led ERAS application, personal statement and mock interview reviews.",
		LogoURL:     cfg.FrontendURL + "/logo.png",
		DefaultOG:   cfg.FrontendURL + "/og-default.png",
	}
	topics, err := blog.LoadTopics(cfg.BlogTopicsFile)
	if err != nil {
		a.close()
		return nil, err
	}
	a.posts = &blog.Store{DB: a.db}
	a.generator = &blog.Generator{
		Store:   a.posts,
		Topics:  topics,
		Site:    a.site,
		Pinger:  seo.NewPinger(cfg.IndexNowKey, log),
		Posters: social.DefaultPosters(log),
		Cache:   a.cache,
		Author:  cfg.SiteName + " Editorial Team",
		Log:     log,
	}
	if a.ai != nil {
		a.generator.Writer = a.ai
	}

	return a, nil
}

// handlers assembles the HTTP handler dependencies.
func (a *app) handlers() *handlers.Handlers {
	h := &handlers.Handlers{
		DB:            a.db,
		Tokens:        auth.NewManager(a.cfg.JWTSecret, a.cfg.JWTTTL),
		Mailer:        a.mailer,
		Reconciler:    &payments.Reconciler{DB: a.db, Log: a.log},
		Blog:          a.generator,
		Posts:         a.posts,
		Cache:         a.cache,
		Site:          a.site,
		Log:           a.log,
		FrontendURL:   a.cfg.FrontendURL,
		BaseURL:       a.cfg.BaseURL,
		UploadDir:     a.cfg.UploadDir,
		WebhookSecret: a.cfg.StripeWebhookSecret,
		Now:           time.Now,
	}
	if a.cfg.PaymentsEnabled() {
		h.Payments = payments.NewStripeClient(a.cfg.StripeSecretKey)
	} else {
		a.log.Warn("STRIPE_SECRET_KEY not set: checkout is disabled")
	}
	if a.ai != nil && a.cfg.InsightsEnabled() {
		h.Insights = a.ai
	}
	return h
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error during shutdown")
		}
	}
	a.closers = nil
}
