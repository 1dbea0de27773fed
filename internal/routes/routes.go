package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/handlers"
	"github.com/residencyreview/eras-review-api/internal/metrics"
	"github.com/residencyreview/eras-review-api/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Options carries the router settings that are not handler dependencies.
type Options struct {
	AllowedOrigin string
	Log           logrus.FieldLogger
	Limiter       *middleware.RateLimiter // nil disables rate limiting

	// TrustedProxies may set X-Forwarded-For. Nil means the client IP is the socket peer.
	TrustedProxies []string
}

func SetupRouter(h *handlers.Handlers, opts Options) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		opts.Log.WithError(err).Warn("invalid trusted proxy list, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	// --- Global Middleware ---
	// CORS must run first so preflight requests are answered before anything else.
	router.Use(middleware.CORSMiddleware(opts.AllowedOrigin))
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(opts.Log))

	limited := func(c *gin.Context) { c.Next() }
	if opts.Limiter != nil {
		limited = opts.Limiter.Handler()
	}
	requireAuth := middleware.AuthMiddleware(h.DB, h.Tokens)

	// --- Root Documents (Public) ---
	router.GET("/sitemap.xml", h.Sitemap)
	router.GET("/rss.xml", h.RSS)
	router.GET("/robots.txt", h.Robots)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if h.UploadDir != "" {
		router.Static("/uploads", h.UploadDir)
	}

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Auth Routes (Public) ---
		v1.POST("/auth/register", limited, h.Register)
		v1.POST("/auth/verify-email", limited, h.VerifyEmail)
		v1.POST("/auth/resend-code", limited, h.ResendVerificationCode)
		v1.POST("/auth/login", limited, h.Login)

		// --- Marketing & Blog (Public) ---
		v1.GET("/plans", h.GetPlans)
		v1.GET("/blog", h.ListBlogPosts)
		v1.GET("/blog/:slug", h.GetBlogPost)
		v1.GET("/seo/organization", h.SEOOrganization)
		v1.GET("/seo/pricing", h.SEOPricing)
		v1.POST("/contact", limited, h.SubmitContact)
		v1.POST("/interview-requests", limited, middleware.OptionalAuth(h.Tokens), h.CreateInterviewRequest)

		// --- Payment Provider Webhook (Signed) ---
		v1.POST("/webhooks/stripe", h.StripeWebhook)

		// --- Applicant Routes (Protected) ---
		auth := v1.Group("/")
		auth.Use(requireAuth)
		{
			auth.GET("/me", h.GetMe)
			auth.PATCH("/me", h.UpdateMe)

			auth.POST("/applications", h.CreateApplication)
			auth.GET("/applications", h.ListMyApplications)
			auth.GET("/applications/:id", h.GetApplication)
			auth.PATCH("/applications/:id", h.UpdateApplication)
			auth.DELETE("/applications/:id", h.DeleteApplication)
			auth.POST("/applications/:id/status", h.ChangeApplicationStatus)
			auth.GET("/applications/:id/reviews", h.ListApplicationReviews)

			auth.POST("/applications/:id/documents", h.CreateDocument)
			auth.GET("/applications/:id/documents", h.ListDocuments)
			auth.PATCH("/documents/:id", h.UpdateDocument)
			auth.DELETE("/documents/:id", h.DeleteDocument)

			auth.POST("/applications/:id/experiences", h.CreateExperience)
			auth.GET("/applications/:id/experiences", h.ListExperiences)
			auth.PATCH("/experiences/:id", h.UpdateExperience)
			auth.DELETE("/experiences/:id", h.DeleteExperience)

			auth.POST("/uploads", h.UploadFile)

			auth.GET("/dashboard", h.GetDashboard)
			auth.GET("/notifications", h.GetMyNotifications)
			auth.PATCH("/notifications/:id/read", h.MarkNotificationAsRead)

			auth.POST("/checkout", h.CreateCheckout)
			auth.GET("/payments", h.GetMyPayments)
			auth.GET("/subscription", h.GetMySubscription)
			auth.POST("/subscription/cancel", h.CancelMySubscription)

			auth.GET("/interview-requests", h.ListMyInterviewRequests)
		}

		// --- Admin-Only Routes ---
		admin := v1.Group("/admin")
		admin.Use(requireAuth)
		admin.Use(middleware.AdminMiddleware(h.DB))
		{
			admin.GET("/stats", h.GetAdminStats)

			admin.GET("/applications", h.AdminListApplications)
			admin.GET("/applications/:id", h.AdminGetApplication)
			admin.PATCH("/applications/:id/status", h.AdminChangeApplicationStatus)
			admin.POST("/applications/:id/reviews", h.AdminCreateReview)
			admin.PATCH("/reviews/:id", h.AdminUpdateReview)

			admin.GET("/users", h.AdminListUsers)
			admin.PATCH("/users/:id", h.AdminUpdateUser)

			admin.GET("/payments", h.AdminListPayments)
			admin.GET("/subscriptions", h.AdminListSubscriptions)

			admin.GET("/interview-requests", h.AdminListInterviewRequests)
			admin.PATCH("/interview-requests/:id", h.AdminUpdateInterviewRequest)

			admin.POST("/insights", h.AdminInsights)

			admin.POST("/blog/generate", h.AdminGenerateBlogPost)
			admin.POST("/blog", h.AdminCreateBlogPost)
			admin.GET("/blog", h.AdminListBlogPosts)
			admin.PUT("/blog/:id", h.AdminUpdateBlogPost)
			admin.POST("/blog/:id/publish", h.AdminPublishBlogPost)
			admin.DELETE("/blog/:id", h.AdminDeleteBlogPost)
		}
	}

	return router
}
