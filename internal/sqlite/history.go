package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mr-karan/certwatch/pkg/models"
)

const (
	insertNotificationHistoryQuery = `INSERT INTO notification_history (
    id,
    item_id,
    item_type,
    item_name,
    team_id,
    days_until_expiry,
    notification_type,
    recipients,
    sent_at,
    status,
    error_message,
    triggered_by
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	notificationExistsQuery = `SELECT EXISTS (
    SELECT 1
    FROM notification_history
    WHERE item_id = ? AND days_until_expiry = ? AND status = ?
)`

	listNotificationHistoryQuery = `SELECT
    h.id,
    h.item_id,
    h.item_type,
    h.item_name,
    h.team_id,
    h.days_until_expiry,
    h.notification_type,
    h.recipients,
    h.sent_at,
    h.status,
    h.error_message,
    h.triggered_by,
    COALESCE(t.name, '')
FROM notification_history h
LEFT JOIN teams t ON t.id = h.team_id
ORDER BY h.sent_at DESC, h.rowid DESC
LIMIT ?`
)

// InsertNotificationHistory appends a ledger entry. Recipients are stored as a
// JSON array; a nil slice is written as []. Writing a second success row for
// the same item and day returns ErrDuplicateSuccess.
func (db *DB) InsertNotificationHistory(ctx context.Context, entry *models.NotificationHistory) error {
	if entry == nil {
		return fmt.Errorf("history entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	recipients := entry.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	_, err = db.writeDB.ExecContext(ctx, insertNotificationHistoryQuery,
		entry.ID,
		entry.ItemID,
		string(entry.ItemType),
		entry.ItemName,
		entry.TeamID,
		entry.DaysUntilExpiry,
		string(entry.NotificationType),
		string(recipientsJSON),
		formatTime(entry.SentAt),
		string(entry.Status),
		nullableString(entry.ErrorMessage),
		string(entry.TriggeredBy),
	)
	if err != nil {
		if entry.Status == models.NotificationStatusSuccess && isUniqueConstraintError(err) {
			return fmt.Errorf("item %s at %d days: %w", entry.ItemID, entry.DaysUntilExpiry, ErrDuplicateSuccess)
		}
		return fmt.Errorf("failed to insert notification history: %w", err)
	}
	return nil
}

// NotificationExists reports whether a history row with the given item,
// day and status has been recorded.
func (db *DB) NotificationExists(ctx context.Context, itemID string, daysUntilExpiry int, status models.NotificationStatus) (bool, error) {
	var exists bool
	if err := db.readDB.QueryRowContext(ctx, notificationExistsQuery, itemID, daysUntilExpiry, string(status)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check notification history: %w", err)
	}
	return exists, nil
}

// ListNotificationHistory returns the newest entries first, joined with the
// team name. A non-positive limit falls back to models.DefaultHistoryLimit.
func (db *DB) ListNotificationHistory(ctx context.Context, limit int) ([]*models.NotificationHistoryView, error) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	rows, err := db.readDB.QueryContext(ctx, listNotificationHistoryQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification history: %w", err)
	}
	defer rows.Close()

	history := make([]*models.NotificationHistoryView, 0, limit)
	for rows.Next() {
		entry, err := scanNotificationHistory(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification history: %w", err)
	}
	return history, nil
}

func scanNotificationHistory(scanner interface{ Scan(dest ...any) error }) (*models.NotificationHistoryView, error) {
	var (
		view             models.NotificationHistoryView
		itemType         string
		notificationType string
		recipientsJSON   string
		sentAt           string
		status           string
		errorMessage     sql.NullString
		triggeredBy      string
	)
	if err := scanner.Scan(
		&view.ID,
		&view.ItemID,
		&itemType,
		&view.ItemName,
		&view.TeamID,
		&view.DaysUntilExpiry,
		&notificationType,
		&recipientsJSON,
		&sentAt,
		&status,
		&errorMessage,
		&triggeredBy,
		&view.TeamName,
	); err != nil {
		return nil, fmt.Errorf("failed to scan notification history: %w", err)
	}

	view.Recipients = []string{}
	if recipientsJSON != "" {
		if err := json.Unmarshal([]byte(recipientsJSON), &view.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients for %s: %w", view.ID, err)
		}
	}

	t, err := parseTime(sentAt)
	if err != nil {
		return nil, err
	}
	view.SentAt = t
	view.ItemType = models.ItemType(itemType)
	view.NotificationType = models.NotificationType(notificationType)
	view.Status = models.NotificationStatus(status)
	view.ErrorMessage = errorMessage.String
	view.TriggeredBy = models.TriggeredBy(triggeredBy)
	return &view, nil
}
