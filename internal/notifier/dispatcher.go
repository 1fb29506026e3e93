// Package notifier decides which expiring items are due a notification,
// sends it and records the outcome in the notification history.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr-karan/certwatch/internal/expiry"
	"github.com/mr-karan/certwatch/internal/sqlite"
	"github.com/mr-karan/certwatch/pkg/models"
)

// NoContactsMessage is recorded when a team has no addresses for the tier.
const NoContactsMessage = "No contacts found for team"

// ErrNoContacts marks an item that could not be sent for lack of recipients.
var ErrNoContacts = errors.New(NoContactsMessage)

// Outcome is the terminal state of one item within a run.
type Outcome string

const (
	OutcomeNotDue      Outcome = "not_due"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeNoContacts  Outcome = "no_contacts"
	OutcomeSendFailed  Outcome = "send_failed"
	OutcomeError       Outcome = "error"
	OutcomeSent        Outcome = "sent"
)

// Failed reports whether the outcome should be retried on a later run.
func (o Outcome) Failed() bool {
	return o == OutcomeNoContacts || o == OutcomeSendFailed || o == OutcomeError
}

// ItemResult is the outcome of processing one item.
type ItemResult struct {
	Item       models.ExpiringItem `json:"item"`
	Outcome    Outcome             `json:"outcome"`
	Recipients []string            `json:"recipients,omitempty"`
	Error      string              `json:"error,omitempty"`
	Err        error               `json:"-"`
}

// RunReport aggregates one notification run.
type RunReport struct {
	TriggeredBy models.TriggeredBy `json:"triggered_by"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Checked     int                `json:"checked"`
	Sent        int                `json:"sent"`
	Skipped     int                `json:"skipped"`
	Failed      int                `json:"failed"`
	Results     []ItemResult       `json:"results"`
}

// Degraded reports whether any item failed.
func (r *RunReport) Degraded() bool {
	return r.Failed > 0
}

func (r *RunReport) add(res ItemResult) {
	r.Checked++
	switch {
	case res.Outcome == OutcomeSent:
		r.Sent++
	case res.Outcome.Failed():
		r.Failed++
	default:
		r.Skipped++
	}
	// Items that were simply not due are counted but not listed.
	if res.Outcome != OutcomeNotDue {
		r.Results = append(r.Results, res)
	}
}

// HistoryStore is the part of the history ledger the dispatcher uses.
type HistoryStore interface {
	NotificationExists(ctx context.Context, itemID string, daysUntilExpiry int, status models.NotificationStatus) (bool, error)
	InsertNotificationHistory(ctx context.Context, entry *models.NotificationHistory) error
}

// ContactResolver returns the recipients for a team at a given days remaining.
type ContactResolver interface {
	Resolve(ctx context.Context, teamID string, daysRemaining int) ([]string, error)
}

// ItemFinder lists items expiring within the lookahead window.
type ItemFinder interface {
	FindExpiring(ctx context.Context, now time.Time) ([]models.ExpiringItem, error)
}

type Options struct {
	History     HistoryStore
	Finder      ItemFinder
	Contacts    ContactResolver
	Sender      Sender
	Thresholds  expiry.ThresholdSet
	Composer    Composer
	SendTimeout time.Duration
	Metrics     *Metrics
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher runs the per-item notification state machine.
type Dispatcher struct {
	history     HistoryStore
	finder      ItemFinder
	contacts    ContactResolver
	sender      Sender
	thresholds  expiry.ThresholdSet
	composer    Composer
	sendTimeout time.Duration
	metrics     *Metrics
	log         *slog.Logger
	now         func() time.Time

	// Serializes runs in this process so the exists-then-insert check
	// cannot interleave between the timer and a manual trigger.
	runMu sync.Mutex
}

func NewDispatcher(opts Options) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		history:     opts.History,
		finder:      opts.Finder,
		contacts:    opts.Contacts,
		sender:      opts.Sender,
		thresholds:  opts.Thresholds,
		composer:    opts.Composer,
		sendTimeout: timeout,
		metrics:     opts.Metrics,
		log:         log.With("component", "notification_dispatcher"),
		now:         now,
	}
}

// Run checks every expiring item and sends the notifications that are due.
// Items are processed one at a time and each item's failure is contained in
// its ItemResult. The error is non-nil only when the run could not start,
// e.g. the expiry query failed.
func (d *Dispatcher) Run(ctx context.Context, triggeredBy models.TriggeredBy) (*RunReport, error) {
	if !triggeredBy.IsValid() {
		triggeredBy = models.TriggeredBySystem
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()

	report := &RunReport{TriggeredBy: triggeredBy, StartedAt: d.now(), Results: []ItemResult{}}
	d.log.Info("notification run started", "triggered_by", triggeredBy)

	items, err := d.finder.FindExpiring(ctx, report.StartedAt)
	if err != nil {
		report.FinishedAt = d.now()
		d.metrics.recordRun(triggeredBy, report.StartedAt, report.FinishedAt, true)
		d.log.Error("failed to fetch expiring items", "error", err)
		return nil, fmt.Errorf("error fetching expiring items: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = d.now()
			d.metrics.recordRun(triggeredBy, report.StartedAt, report.FinishedAt, true)
			return report, fmt.Errorf("notification run interrupted: %w", err)
		}
		report.add(d.Process(ctx, item, triggeredBy))
	}

	report.FinishedAt = d.now()
	d.metrics.recordRun(triggeredBy, report.StartedAt, report.FinishedAt, false)
	d.log.Info("notification run finished",
		"triggered_by", triggeredBy,
		"checked", report.Checked,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// Process takes one item through the notification state machine.
func (d *Dispatcher) Process(ctx context.Context, item models.ExpiringItem, triggeredBy models.TriggeredBy) ItemResult {
	res := d.process(ctx, item, triggeredBy)
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	d.metrics.recordOutcome(res.Outcome)
	return res
}

func (d *Dispatcher) process(ctx context.Context, item models.ExpiringItem, triggeredBy models.TriggeredBy) ItemResult {
	res := ItemResult{Item: item}
	log := d.log.With("item_id", item.ID, "item_type", item.Type, "days_remaining", item.DaysRemaining)

	if !d.thresholds.Contains(item.DaysRemaining) {
		res.Outcome = OutcomeNotDue
		return res
	}

	sent, err := d.history.NotificationExists(ctx, item.ID, item.DaysRemaining, models.NotificationStatusSuccess)
	if err != nil {
		log.Error("failed to check notification history", "error", err)
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("checking history: %w", err)
		return res
	}
	if sent {
		log.Debug("notification already sent for threshold")
		res.Outcome = OutcomeAlreadySent
		return res
	}

	recipients, err := d.contacts.Resolve(ctx, item.TeamID, item.DaysRemaining)
	if err != nil {
		log.Error("failed to resolve contacts", "team_id", item.TeamID, "error", err)
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("resolving contacts: %w", err)
		d.record(ctx, log, item, triggeredBy, []string{}, res.Err)
		return res
	}
	res.Recipients = recipients

	if len(recipients) == 0 {
		log.Warn("no contacts found for team", "team_id", item.TeamID)
		res.Outcome, res.Err = OutcomeNoContacts, ErrNoContacts
		d.record(ctx, log, item, triggeredBy, []string{}, ErrNoContacts)
		return res
	}

	msg, err := d.composer.Compose(item)
	if err != nil {
		log.Error("failed to compose message", "error", err)
		res.Outcome, res.Err = OutcomeError, err
		d.record(ctx, log, item, triggeredBy, recipients, err)
		return res
	}

	for _, to := range recipients {
		if err := d.send(ctx, to, msg); err != nil {
			d.metrics.recordEmail(false)
			log.Error("failed to send notification email", "to", to, "error", err)
			res.Outcome, res.Err = OutcomeSendFailed, err
			d.record(ctx, log, item, triggeredBy, recipients, err)
			return res
		}
		d.metrics.recordEmail(true)
	}

	err = d.record(ctx, log, item, triggeredBy, recipients, nil)
	switch {
	case err == nil, errors.Is(err, sqlite.ErrDuplicateSuccess):
		log.Info("notification sent", "team_id", item.TeamID, "recipients", len(recipients))
		res.Outcome = OutcomeSent
	default:
		// Mail went out but the ledger has no success row, so a later run
		// will send again.
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("recording success: %w", err)
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, to string, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sendCtx, to, msg.Subject, msg.HTML)
}

// record appends a history row. A nil cause records a success.
func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, item models.ExpiringItem, triggeredBy models.TriggeredBy, recipients []string, cause error) error {
	entry := &models.NotificationHistory{
		ItemID:           item.ID,
		ItemType:         item.Type,
		ItemName:         item.Name,
		TeamID:           item.TeamID,
		DaysUntilExpiry:  item.DaysRemaining,
		NotificationType: models.NotificationTypeExpiryWarning,
		Recipients:       recipients,
		SentAt:           d.now(),
		Status:           models.NotificationStatusSuccess,
		TriggeredBy:      triggeredBy,
	}
	if d.composer.IsUrgent(item.DaysRemaining) {
		entry.NotificationType = models.NotificationTypeExpiryUrgent
	}
	if cause != nil {
		entry.Status = models.NotificationStatusFailed
		entry.ErrorMessage = cause.Error()
	}

	err := d.history.InsertNotificationHistory(ctx, entry)
	switch {
	case err == nil:
	case errors.Is(err, sqlite.ErrDuplicateSuccess):
		log.Warn("success already recorded by another run")
	default:
		log.Error("failed to record notification history", "status", entry.Status, "error", err)
	}
	return err
}
