package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/payments"
	"github.com/residencyreview/eras-review-api/internal/seo"
	"github.com/sirupsen/logrus"
)

// InsightsAssistant answers admin questions about the business data.
type InsightsAssistant interface {
	Ask(ctx context.Context, question string) (string, int, error)
}

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB         *sqlx.DB          // Primary Read/Write connection
	Insights   InsightsAssistant // nil when no LLM or read-only pool is configured
	Tokens     *auth.Manager
	Mailer     *email.Mailer
	Payments   payments.Client // nil when no Stripe key is configured
	Reconciler *payments.Reconciler
	Blog       *blog.Generator
	Posts      *blog.Store
	Cache      cache.Cache
	Site       seo.Site
	Log        logrus.FieldLogger

	FrontendURL   string
	BaseURL       string
	UploadDir     string
	WebhookSecret string

	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// currentUserID reads the ID AuthMiddleware stored in the context.
func currentUserID(c *gin.Context) int64 {
	userIDRaw, _ := c.Get("userID")
	userID, _ := userIDRaw.(int64)
	return userID
}

// paramID parses a numeric path parameter, replying 400 when it is not one.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// pagination reads ?page=&pageSize= with sane bounds.
func pagination(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}

// sendEmail delivers a template without failing the request; the change it
// reports has already been committed.
func (h *Handlers) sendEmail(ctx context.Context, template string, data map[string]any, to string) {
	var err error
	if to == "" {
		err = h.Mailer.SendToAdmin(ctx, template, data)
	} else {
		err = h.Mailer.Send(ctx, template, data, to)
	}
	if err != nil {
		h.Log.WithError(err).WithField("template", template).Warn("failed to send email")
	}
}
