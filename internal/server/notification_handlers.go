package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/certwatch/internal/core"
	"github.com/mr-karan/certwatch/pkg/models"
)

// CheckResponse is returned by the notification check trigger. It keeps a
// flat shape so schedulers like cron+curl can test "success".
type CheckResponse struct {
	Success  bool `json:"success"`
	Degraded bool `json:"degraded"`
	Checked  int  `json:"checked"`
	Sent     int  `json:"sent"`
	Skipped  int  `json:"skipped"`
	Failed   int  `json:"failed"`
}

// CheckErrorResponse is returned when a check could not run.
type CheckErrorResponse struct {
	Error string `json:"error"`
}

// SendResponse is returned by the admin trigger.
type SendResponse struct {
	Degraded bool `json:"degraded"`
	*core.TriggerResult
}

// handleCheckNotifications runs a system-triggered notification check.
// URL: GET /api/v1/notifications/check
// @Summary Run the expiry notification check
// @Tags notifications
// @Produce json
// @Success 200 {object} CheckResponse
// @Failure 500 {object} CheckErrorResponse
// @Router /notifications/check [get]
func (s *Server) handleCheckNotifications(c *fiber.Ctx) error {
	report, err := s.runner.Run(c.Context(), models.TriggeredBySystem)
	if err != nil {
		s.log.Error("notification check failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(CheckErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(CheckResponse{
		Success:  true,
		Degraded: report.Degraded(),
		Checked:  report.Checked,
		Sent:     report.Sent,
		Skipped:  report.Skipped,
		Failed:   report.Failed,
	})
}

// handleSendNotifications runs an admin-triggered check and returns the run
// report with the refreshed history.
// URL: POST /api/v1/admin/notifications/send
// @Summary Send notifications now
// @Tags admin
// @Produce json
// @Success 200 {object} SendResponse
// @Failure 500 {object} models.APIResponse
// @Router /admin/notifications/send [post]
func (s *Server) handleSendNotifications(c *fiber.Ctx) error {
	res, err := core.TriggerNotifications(c.Context(), s.log, s.runner, s.history, models.TriggeredByAdmin)
	if err != nil {
		s.log.Error("manual notification run failed", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to send notifications: "+err.Error(), models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, SendResponse{
		Degraded:      res.Report.Degraded(),
		TriggerResult: res,
	})
}

// handleListHistory returns recent notification history, newest first.
// URL: GET /api/v1/notifications/history?limit=100
// @Summary List notification history
// @Tags notifications
// @Produce json
// @Param limit query int false "Maximum rows (1-500, default 100)"
// @Success 200 {array} models.NotificationHistoryView
// @Failure 400 {object} models.APIResponse
// @Router /notifications/history [get]
func (s *Server) handleListHistory(c *fiber.Ctx) error {
	limit, err := core.ParseHistoryLimit(c.Query("limit"))
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	history, err := core.ListHistory(c.Context(), s.history, limit)
	if err != nil {
		if errors.Is(err, core.ErrInvalidLimit) {
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
		}
		s.log.Error("failed to list notification history", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list notification history", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, history)
}

// handleListUpcoming returns items in the lookahead window with their
// next notification day.
// URL: GET /api/v1/notifications/upcoming
// @Summary List upcoming expiries
// @Tags notifications
// @Produce json
// @Success 200 {array} models.UpcomingExpiry
// @Router /notifications/upcoming [get]
func (s *Server) handleListUpcoming(c *fiber.Ctx) error {
	upcoming, err := core.ListUpcoming(c.Context(), s.upcoming, s.thresholds, s.now())
	if err != nil {
		s.log.Error("failed to list upcoming expiries", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list upcoming expiries", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, upcoming)
}
