package server

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/certwatch/pkg/models"
)

// MetaResponse describes the running server and its notification settings.
type MetaResponse struct {
	Version             string `json:"version"`
	HTTPServerTimeout   string `json:"http_server_timeout"`
	SchedulerEnabled    bool   `json:"scheduler_enabled"`
	SchedulerInterval   string `json:"scheduler_interval"`
	LookaheadDays       int    `json:"lookahead_days"`
	Thresholds          []int  `json:"thresholds"`
	UrgentWithinDays    int    `json:"urgent_within_days"`
	Alert3MinDays       int    `json:"alert3_min_days"`
	Alert2MinDays       int    `json:"alert2_min_days"`
	Alert1MinDays       int    `json:"alert1_min_days"`
	SMTPConfigured      bool   `json:"smtp_configured"`
	MaxHistoryLimit     int    `json:"max_history_limit"`
	DefaultHistoryLimit int    `json:"default_history_limit"`
}

// handleGetMeta returns server metadata.
// URL: GET /api/v1/meta
// @Summary Get server metadata
// @Tags meta
// @Produce json
// @Success 200 {object} MetaResponse "Server metadata"
// @Router /meta [get]
func (s *Server) handleGetMeta(c *fiber.Ctx) error {
	n := s.notifications
	return SendSuccess(c, fiber.StatusOK, MetaResponse{
		Version:             s.version,
		HTTPServerTimeout:   s.config.HTTPServerTimeout.String(),
		SchedulerEnabled:    n.Enabled,
		SchedulerInterval:   n.Interval.String(),
		LookaheadDays:       n.LookaheadDays,
		Thresholds:          s.thresholds.Days(),
		UrgentWithinDays:    n.UrgentWithinDays,
		Alert3MinDays:       n.Tiers.Alert3MinDays,
		Alert2MinDays:       n.Tiers.Alert2MinDays,
		Alert1MinDays:       n.Tiers.Alert1MinDays,
		SMTPConfigured:      s.smtpConfigured,
		MaxHistoryLimit:     models.MaxHistoryLimit,
		DefaultHistoryLimit: models.DefaultHistoryLimit,
	})
}

// handleHealth reports whether the database is reachable.
// URL: GET /api/v1/health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.health != nil {
		if err := s.health.Ping(); err != nil {
			s.log.Error("health check failed", "error", err)
			return SendErrorWithType(c, fiber.StatusServiceUnavailable, "Database unavailable", models.UnavailableErrorType)
		}
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"status": "ok"})
}

// handleMetrics exposes Prometheus metrics.
// URL: GET /metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
	metrics.WritePrometheus(c.Response().BodyWriter(), true)
	return nil
}
