// Package expiry finds certificates and service IDs approaching expiry.
package expiry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mr-karan/certwatch/pkg/models"
)

const day = 24 * time.Hour

// DefaultLookaheadDays is how far ahead expiring items are considered.
const DefaultLookaheadDays = 90

// DaysRemaining returns ceil((expiry - now) / 24h). It is negative for
// items already past expiry.
func DaysRemaining(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := int(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// Store is the read side of the inventory tables.
type Store interface {
	ListExpiringCertificates(ctx context.Context, from, to time.Time) ([]*models.Certificate, error)
	ListExpiringServiceIDs(ctx context.Context, from, to time.Time) ([]*models.ServiceID, error)
}

// Finder produces ExpiringItems for a point in time.
type Finder struct {
	store         Store
	lookaheadDays int
}

// NewFinder creates a Finder. A non-positive lookahead uses DefaultLookaheadDays.
func NewFinder(store Store, lookaheadDays int) *Finder {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return &Finder{store: store, lookaheadDays: lookaheadDays}
}

// LookaheadDays returns the window size in days.
func (f *Finder) LookaheadDays() int {
	return f.lookaheadDays
}

// FindExpiring returns every item with now < expiry <= now+lookahead,
// certificates first, then service IDs.
func (f *Finder) FindExpiring(ctx context.Context, now time.Time) ([]models.ExpiringItem, error) {
	to := now.Add(time.Duration(f.lookaheadDays) * day)

	certs, err := f.store.ListExpiringCertificates(ctx, now, to)
	if err != nil {
		return nil, fmt.Errorf("error fetching expiring certificates: %w", err)
	}
	sids, err := f.store.ListExpiringServiceIDs(ctx, now, to)
	if err != nil {
		return nil, fmt.Errorf("error fetching expiring service ids: %w", err)
	}

	items := make([]models.ExpiringItem, 0, len(certs)+len(sids))
	for _, c := range certs {
		items = f.appendItem(items, models.ExpiringItem{
			ID:         c.ID,
			Name:       c.CommonName,
			Type:       models.ItemTypeCertificate,
			ExpiryDate: c.ValidTo,
			TeamID:     c.TeamID,
		}, now)
	}
	for _, s := range sids {
		items = f.appendItem(items, models.ExpiringItem{
			ID:         s.ID,
			Name:       s.Name,
			Type:       models.ItemTypeServiceID,
			ExpiryDate: s.ExpDate,
			TeamID:     s.RenewingTeamID,
		}, now)
	}
	return items, nil
}

// appendItem fills DaysRemaining and drops anything the store returned
// outside the window.
func (f *Finder) appendItem(items []models.ExpiringItem, item models.ExpiringItem, now time.Time) []models.ExpiringItem {
	item.DaysRemaining = DaysRemaining(item.ExpiryDate, now)
	if item.DaysRemaining <= 0 || item.DaysRemaining > f.lookaheadDays {
		return items
	}
	return append(items, item)
}

// Upcoming annotates every expiring item with its next notification day,
// soonest expiry first.
func (f *Finder) Upcoming(ctx context.Context, now time.Time, thresholds ThresholdSet) ([]models.UpcomingExpiry, error) {
	items, err := f.FindExpiring(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]models.UpcomingExpiry, 0, len(items))
	for _, item := range items {
		u := models.UpcomingExpiry{ExpiringItem: item}
		if next, ok := thresholds.NextNotificationDay(item.DaysRemaining); ok {
			until := item.DaysRemaining - next
			u.NextNotificationDay = &next
			u.DaysUntilNextNotification = &until
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysRemaining != out[j].DaysRemaining {
			return out[i].DaysRemaining < out[j].DaysRemaining
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
