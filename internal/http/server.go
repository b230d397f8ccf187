package http

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spendinglog/internal/auth"
	"spendinglog/internal/cache"
	"spendinglog/internal/core"
	"spendinglog/internal/deploy"
	applog "spendinglog/internal/log"
	appweb "spendinglog/web"
)

// ExpenseStore is what the handlers need from the expense service. All
// inputs arrive as form text; the service owns parsing and validation.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, itemName, priceText, dateText, rawLabels string) (core.Expense, error)
	ReplaceLabels(ctx context.Context, expenseID int64, rawLabels string) (core.Expense, error)
	FindByDateRange(ctx context.Context, startText, endText string) ([]core.Expense, error)
	ListLabels(ctx context.Context) ([]core.Label, error)
}

// Options configures the HTTP server. Auth nil disables the login wall;
// WebhookSecret empty disables the deploy webhook.
type Options struct {
	Addr          string
	Store         ExpenseStore
	Auth          *auth.Authenticator
	Puller        *deploy.Puller
	WebhookSecret string
}

type Server struct {
	http.Server
	templates     *template.Template
	store         ExpenseStore
	auth          *auth.Authenticator
	puller        *deploy.Puller
	webhookSecret string
	rateLimiter   *rateLimiter

	// Label catalogue partial cache; invalidated on every write.
	labelsCache *cache.TTLCache[string, []core.Label]

	shutdownOnce sync.Once
}

const labelsCacheKey = "catalogue"

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		store:         opts.Store,
		auth:          opts.Auth,
		puller:        opts.Puller,
		webhookSecret: opts.WebhookSecret,
		rateLimiter:   newRateLimiter(60, time.Minute),
		labelsCache:   cache.New[string, []core.Label](4, 5*time.Minute),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux.HandleFunc("/", s.withSecurityHeaders(s.requireSession(s.handleIndex)))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.requireSession(s.handleExpenses)))
	mux.HandleFunc("/expenses/labels", s.withSecurityHeaders(s.requireSession(s.handleReplaceLabels)))
	mux.HandleFunc("/labels", s.withSecurityHeaders(s.requireSession(s.handleListLabels)))

	if s.auth != nil {
		mux.HandleFunc("/login", s.withSecurityHeaders(s.handleLogin))
		mux.HandleFunc("/logout", s.withSecurityHeaders(s.handleLogout))
	}

	if s.puller != nil && s.webhookSecret != "" {
		mux.HandleFunc("/update_server", s.withSecurityHeaders(s.handleUpdateServer))
	}

	// Request-scoped logger available to handlers via applog.FromContext,
	// stamped with a per-request id.
	logger := applog.New(slog.LevelInfo, applog.ComponentHTTP)
	s.Server.Handler = applog.Middleware(logger)(applog.RequestIDMiddleware(requestIDFor)(mux))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting on writes, and
// request logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		ctx := r.Context()
		logger := applog.FromContext(ctx)
		logger.InfoContext(ctx, "Request started",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded", applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "Request completed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

// requireSession gates a handler behind the shared-credential session.
// Browsers get redirected to the login page; non-GET requests get a 401.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	if s.auth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err == nil {
			if _, ok := s.auth.Verify(cookie.Value); ok {
				next(w, r)
				return
			}
		}

		if r.Method == http.MethodGet {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`<div class="error">Session expired, please log in again</div>`))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) invalidateLabels() {
	s.labelsCache.Delete(labelsCacheKey)
}

func (s *Server) getLabels(ctx context.Context) ([]core.Label, error) {
	if labels, found := s.labelsCache.Get(labelsCacheKey); found {
		return labels, nil
	}
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	s.labelsCache.Set(labelsCacheKey, labels)
	return labels, nil
}
