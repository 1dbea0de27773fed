package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/residencyreview/eras-review-api/internal/middleware"
	"github.com/residencyreview/eras-review-api/internal/payments"
	"github.com/residencyreview/eras-review-api/internal/routes"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	jobTimeout        = 5 * time.Minute
	pendingPaymentTTL = 24 * time.Hour
	shutdownTimeout   = 15 * time.Second
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if migrate {
		if err := migrateUp(a); err != nil {
			return err
		}
	}

	// --- Application Setup ---
	h := a.handlers()
	limiter := middleware.NewRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)

	// --- Background Workers (Cron) ---
	scheduler := blog.NewScheduler(a.log, jobTimeout)
	if a.cfg.BlogAutogen {
		if err := scheduler.Add("blog_generation", a.cfg.BlogCron, blog.GenerationJob(a.generator)); err != nil {
			return err
		}
	}
	err = scheduler.Add("expire_pending_payments", "@hourly", func(ctx context.Context) error {
		n, err := payments.ExpireStale(ctx, a.db, pendingPaymentTTL, time.Now())
		if err == nil && n > 0 {
			a.log.WithField("count", n).Info("expired stale pending payments")
		}
		return err
	})
	if err != nil {
		return err
	}
	err = scheduler.Add("rate_limiter_cleanup", "*/10 * * * *", func(context.Context) error {
		limiter.Cleanup(30 * time.Minute)
		return nil
	})
	if err != nil {
		return err
	}
	scheduler.Start()

	// --- Router Setup ---
	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(h, routes.Options{
		AllowedOrigin:  a.cfg.FrontendURL,
		Log:            a.log,
		Limiter:        limiter,
		TrustedProxies: a.cfg.TrustedProxyList(),
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Start Server ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.WithField("port", a.cfg.Port).Info("starting ERAS review API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
