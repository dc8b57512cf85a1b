package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flariki/internal/domain"
	"flariki/internal/metrics"
	"flariki/internal/models"
	"flariki/internal/service"
)

const (
	headerInitData  = "X-Telegram-Init-Data"
	headerRequestID = "X-Request-ID"

	ctxIdentity = "identity"
	ctxDevMode  = "dev_mode"
)

// requestLogger кладет в контекст запроса логгер с request_id.
func requestLogger(base *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		l := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		log := zerolog.Ctx(c.Request.Context())
		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("http request")
	}
}

func recovery(dev bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxDevMode, dev)
		defer func() {
			if r := recover(); r != nil {
				respondError(c, domain.Internal(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, c.Writer.Status(), time.Since(start))
	}
}

// authenticate resolves the caller from init data or a bearer token.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.svc.Gate.Authenticate(c.Request.Context(), service.Credentials{
			InitData:      c.GetHeader(headerInitData),
			Authorization: c.GetHeader("Authorization"),
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(ctxIdentity, id)
		l := zerolog.Ctx(c.Request.Context()).With().Str("user_id", id.UserID).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

func identity(c *gin.Context) *service.Identity {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*service.Identity)
	return id
}

func requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if id == nil {
			respondError(c, domain.Unauthenticated("authentication required"))
			return
		}
		if err := service.RequireRole(id, models.RoleManager, models.RoleAdmin); err != nil {
			respondError(c, err)
			return
		}
		c.Next()
	}
}

// rateLimit ограничивает число запросов на пользователя. Ошибка хранилища пропускает запрос.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := s.cfg.API.RateLimit
		if s.svc.RateLimits == nil || limit.Requests <= 0 {
			c.Next()
			return
		}

		key := "api:" + c.ClientIP()
		if id := identity(c); id != nil {
			key = "api:" + id.UserID
		}

		ok, err := s.svc.RateLimits.CheckRateLimit(c.Request.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("rate limit check failed")
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Слишком много запросов, попробуйте позже",
			})
			return
		}
		c.Next()
	}
}
