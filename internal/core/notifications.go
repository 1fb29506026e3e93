package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mr-karan/certwatch/internal/expiry"
	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/models"
)

// ErrInvalidLimit is returned for a history limit outside 1..MaxHistoryLimit.
var ErrInvalidLimit = errors.New("invalid limit")

// HistoryLister reads the notification ledger.
type HistoryLister interface {
	ListNotificationHistory(ctx context.Context, limit int) ([]*models.NotificationHistoryView, error)
}

// UpcomingLister annotates expiring items with their next notification day.
type UpcomingLister interface {
	Upcoming(ctx context.Context, now time.Time, thresholds expiry.ThresholdSet) ([]models.UpcomingExpiry, error)
}

// ParseHistoryLimit parses a limit query parameter. Empty means the default.
func ParseHistoryLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.DefaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidLimit, raw)
	}
	if limit < 1 || limit > models.MaxHistoryLimit {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, models.MaxHistoryLimit)
	}
	return limit, nil
}

// ListHistory returns the newest history entries, newest first.
func ListHistory(ctx context.Context, store HistoryLister, limit int) ([]*models.NotificationHistoryView, error) {
	if limit < 1 || limit > models.MaxHistoryLimit {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, models.MaxHistoryLimit)
	}
	history, err := store.ListNotificationHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing notification history: %w", err)
	}
	if history == nil {
		history = []*models.NotificationHistoryView{}
	}
	return history, nil
}

// ListUpcoming returns all items in the lookahead window with their schedule.
func ListUpcoming(ctx context.Context, finder UpcomingLister, thresholds expiry.ThresholdSet, now time.Time) ([]models.UpcomingExpiry, error) {
	upcoming, err := finder.Upcoming(ctx, now, thresholds)
	if err != nil {
		return nil, fmt.Errorf("error listing upcoming expiries: %w", err)
	}
	if upcoming == nil {
		upcoming = []models.UpcomingExpiry{}
	}
	return upcoming, nil
}

// TriggerResult is returned to whoever started a run by hand.
type TriggerResult struct {
	Report  *notifier.RunReport               `json:"report"`
	History []*models.NotificationHistoryView `json:"history"`
}

// TriggerNotifications runs a notification check and returns the report along
// with the latest history. A failure to reload history is logged, not returned,
// since the run itself already happened.
func TriggerNotifications(ctx context.Context, log *slog.Logger, runner notifier.Runner, store HistoryLister, triggeredBy models.TriggeredBy) (*TriggerResult, error) {
	if !triggeredBy.IsValid() {
		return nil, fmt.Errorf("invalid triggered_by %q", triggeredBy)
	}

	report, err := runner.Run(ctx, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("notification run failed: %w", err)
	}

	result := &TriggerResult{Report: report, History: []*models.NotificationHistoryView{}}
	history, err := store.ListNotificationHistory(ctx, models.DefaultHistoryLimit)
	if err != nil {
		log.Warn("failed to reload notification history after run", "error", err)
		return result, nil
	}
	if history != nil {
		result.History = history
	}
	return result, nil
}
