package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"flariki/internal/config"
	"flariki/internal/export"
	"flariki/internal/models"
)

const (
	PermReadStats   = "read:stats"
	PermReadReports = "read:reports"

	ctxIntegrationClient = "integration_client"
)

var (
	errMissingAPIKey    = errors.New("missing api key headers")
	errInvalidAPIKey    = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

// IntegrationAuth checks API key + extra header, per-key permissions and a per-key token bucket.
type IntegrationAuth struct {
	cfg      config.APIIntegrationConfig
	clients  map[string]config.APIClientKey
	limiters *keyLimiters
}

func NewIntegrationAuth(cfg config.APIIntegrationConfig) *IntegrationAuth {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &IntegrationAuth{
		cfg:      cfg,
		clients:  m,
		limiters: newKeyLimiters(cfg.RPS, cfg.Burst),
	}
}

func (a *IntegrationAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := a.checkAuth(c.Request)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "message": err.Error()})
			return
		}

		if !a.limiters.allow(client.Key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "rate limit exceeded"})
			return
		}

		c.Set(ctxIntegrationClient, client.Name)
		c.Next()
	}
}

func (a *IntegrationAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.cfg.HeaderAPIKey))
	extra := strings.TrimSpace(r.Header.Get(a.cfg.HeaderExtra))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}

	if !hasPermission(client, requiredPermission(r.URL.Path)) {
		return config.APIClientKey{}, errPermissionDenied
	}
	return client, nil
}

// hasPermission: пустой список прав разрешает все.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermission(path string) string {
	switch {
	case strings.HasSuffix(path, "/leaderboard"):
		return PermReadStats
	case strings.HasSuffix(path, "/reports"):
		return PermReadReports
	}
	return ""
}

func (s *Server) integrationLeaderboard(c *gin.Context) {
	f, err := statsFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	board, err := s.svc.Stats.Leaderboard(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("format") == "xlsx" {
		s.sendXLSX(c, "leaderboard.xlsx", func(w http.ResponseWriter) error {
			return export.Leaderboard(w, board, time.Now())
		})
		return
	}
	c.JSON(http.StatusOK, board)
}

func (s *Server) integrationReports(c *gin.Context) {
	status := models.ReportApproved
	f := models.ReportFilter{
		Status: &status,
		TaskID: optionalQuery(c, "taskId"),
		Page:   pageFromQuery(c),
	}
	if st := queryEnum[models.ReportStatus](c, "status"); st != nil {
		f.Status = st
	}

	reports, page, err := s.svc.Reports.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "reports", reports, page)
}
