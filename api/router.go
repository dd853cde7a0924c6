// Package api exposes the learngate gateway over HTTP with gin: the
// quota-governed AI endpoints, the subscription view and the M-Pesa payment
// routes.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/auth"
	"github.com/xraph/learngate/id"
)

// HeaderRequestID carries the request correlation id.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "learngate.request_id"

// Server holds the handler dependencies.
type Server struct {
	gateway        *learngate.Gateway
	verifier       auth.TokenVerifier
	logger         *slog.Logger
	allowedOrigins []string
	extra          []func(*gin.Engine)
}

// Option configures a Server.
type Option func(*Server)

// WithVerifier sets the bearer token verifier for protected routes.
func WithVerifier(v auth.TokenVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAllowedOrigins sets the CORS allow list. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = append(s.allowedOrigins, origins...) }
}

// WithRoutes registers additional routes, such as a metrics endpoint.
func WithRoutes(fn func(*gin.Engine)) Option {
	return func(s *Server) { s.extra = append(s.extra, fn) }
}

// New creates a Server.
func New(gw *learngate.Gateway, opts ...Option) *Server {
	s := &Server{
		gateway: gw,
		logger:  gw.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog(), cors.New(s.corsConfig()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "Server running"})
	})
	r.GET("/healthz", s.health)

	// Provider-facing and client payment routes identify the user in the
	// body or query instead of a bearer token.
	pay := r.Group("/api/payment/mpesa")
	pay.POST("/initiate", s.initiatePayment)
	pay.POST("/callback", s.paymentCallback)
	pay.POST("/timeout", s.paymentTimeout)
	pay.GET("/status/:transactionId", s.paymentStatus)

	protected := r.Group("/api")
	protected.Use(auth.Middleware(s.verifier, s.logger))
	protected.POST("/ai/generate-tasks", s.generateTasks)
	protected.POST("/ai/analyze-skills", s.analyzeSkills)
	protected.POST("/ai/generate-achievements", s.generateAchievements)
	protected.POST("/ai/generate-learning-path", s.generateLearningPath)
	protected.POST("/ai/tutor-chat", s.tutorChat)
	protected.POST("/student/skill-recommendations", s.skillRecommendations)
	protected.POST("/gemini", s.geminiProxy)
	protected.GET("/subscription", s.getSubscription)

	for _, fn := range s.extra {
		fn(r)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	if err := s.gateway.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
		ExposeHeaders:    []string{HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cfg
	}

	allowed := make(map[string]bool, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	cfg.AllowOriginFunc = func(origin string) bool {
		return allowed[strings.TrimRight(origin, "/")]
	}
	return cfg
}

// requestID propagates an incoming X-Request-ID or assigns a new one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"request_id", requestIDFrom(c),
		)
	}
}

// userID returns the verified subject set by auth.Middleware.
func userID(c *gin.Context) string {
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
		return claims.Subject
	}
	return ""
}
