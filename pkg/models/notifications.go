package models

import "time"

// ItemType distinguishes the two kinds of expiring inventory.
type ItemType string

const (
	ItemTypeCertificate ItemType = "certificate"
	ItemTypeServiceID   ItemType = "service_id"
)

// Label returns a human readable name for the item type.
func (t ItemType) Label() string {
	switch t {
	case ItemTypeCertificate:
		return "Certificate"
	case ItemTypeServiceID:
		return "Service ID"
	default:
		return string(t)
	}
}

// ExpiringItem is computed on every run from certificate and service ID rows.
// It is never persisted.
type ExpiringItem struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          ItemType  `json:"type"`
	ExpiryDate    time.Time `json:"expiry_date"`
	TeamID        string    `json:"team_id"`
	DaysRemaining int       `json:"days_remaining"`
}

// TriggeredBy records who started a notification run.
type TriggeredBy string

const (
	TriggeredBySystem TriggeredBy = "system"
	TriggeredByAdmin  TriggeredBy = "admin"
)

// IsValid reports whether t is a known trigger source.
func (t TriggeredBy) IsValid() bool {
	return t == TriggeredBySystem || t == TriggeredByAdmin
}

// NotificationStatus is the outcome of a single notification attempt.
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// NotificationType classifies the message that was sent.
type NotificationType string

const (
	NotificationTypeExpiryWarning NotificationType = "expiry_warning"
	NotificationTypeExpiryUrgent  NotificationType = "expiry_urgent"
)

// NotificationHistory is one row of the append-only notification ledger.
// Recipients is kept as an ordered list here and serialised only by the store.
type NotificationHistory struct {
	ID               string             `json:"id"`
	ItemID           string             `json:"item_id"`
	ItemType         ItemType           `json:"item_type"`
	ItemName         string             `json:"item_name"`
	TeamID           string             `json:"team_id"`
	DaysUntilExpiry  int                `json:"days_until_expiry"`
	NotificationType NotificationType   `json:"notification_type"`
	Recipients       []string           `json:"recipients"`
	SentAt           time.Time          `json:"sent_at"`
	Status           NotificationStatus `json:"status"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	TriggeredBy      TriggeredBy        `json:"triggered_by"`
}

// NotificationHistoryView is a history row joined with the owning team's name.
type NotificationHistoryView struct {
	NotificationHistory
	TeamName string `json:"team_name"`
}

// UpcomingExpiry annotates an expiring item with its notification schedule.
// NextNotificationDay is the largest threshold not above DaysRemaining.
type UpcomingExpiry struct {
	ExpiringItem
	NextNotificationDay       *int `json:"next_notification_day"`
	DaysUntilNextNotification *int `json:"days_until_next_notification"`
}

// DefaultHistoryLimit is the number of history rows returned when unspecified.
const DefaultHistoryLimit = 100

// MaxHistoryLimit caps the history read path.
const MaxHistoryLimit = 500
