// Package contacts picks which team addresses receive an expiry notification.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mr-karan/certwatch/internal/sqlite"
	"github.com/mr-karan/certwatch/pkg/models"
)

// TierTable holds the days-remaining breakpoints for contact tiers. They are
// independent of the notification thresholds: at 15 days the alert1 tier is
// used, at 7 and 1 days escalation is.
type TierTable struct {
	Alert3MinDays int
	Alert2MinDays int
	Alert1MinDays int
}

// DefaultTierTable returns the 60/30/10 breakpoints.
func DefaultTierTable() TierTable {
	return TierTable{Alert3MinDays: 60, Alert2MinDays: 30, Alert1MinDays: 10}
}

// Select returns the tier for the given days remaining, evaluated high to low.
func (t TierTable) Select(daysRemaining int) models.ContactTier {
	switch {
	case daysRemaining >= t.Alert3MinDays:
		return models.ContactTierAlert3
	case daysRemaining >= t.Alert2MinDays:
		return models.ContactTierAlert2
	case daysRemaining >= t.Alert1MinDays:
		return models.ContactTierAlert1
	default:
		return models.ContactTierEscalation
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func emailValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ParseAddresses splits a comma-delimited contact string into trimmed, valid,
// de-duplicated addresses in their original order. It never returns nil.
func ParseAddresses(raw string) []string {
	valid, _ := splitAddresses(raw)
	return valid
}

func splitAddresses(raw string) (valid, rejected []string) {
	valid = []string{}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		if err := emailValidator().Var(addr, "email"); err != nil {
			rejected = append(rejected, addr)
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		valid = append(valid, addr)
	}
	return valid, rejected
}

// TeamGetter loads a team by ID. Implementations return an error wrapping
// sqlite.ErrNotFound when the team does not exist.
type TeamGetter interface {
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
}

// Resolver maps a team and days remaining to recipient addresses.
type Resolver struct {
	teams TeamGetter
	tiers TierTable
	log   *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(teams TeamGetter, tiers TierTable, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		teams: teams,
		tiers: tiers,
		log:   log.With("component", "contact_resolver"),
	}
}

// Tiers returns the breakpoints in use.
func (r *Resolver) Tiers() TierTable {
	return r.tiers
}

// Resolve returns the recipients for the tier selected by daysRemaining.
// A missing team or an empty tier yields an empty list and no error.
func (r *Resolver) Resolve(ctx context.Context, teamID string, daysRemaining int) ([]string, error) {
	team, err := r.teams.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			r.log.Warn("team not found while resolving contacts", "team_id", teamID)
			return []string{}, nil
		}
		return nil, fmt.Errorf("error loading team %s: %w", teamID, err)
	}

	tier := r.tiers.Select(daysRemaining)
	valid, rejected := splitAddresses(team.Contacts(tier))
	if len(rejected) > 0 {
		r.log.Warn("dropping invalid contact addresses",
			"team_id", teamID,
			"tier", tier,
			"rejected", rejected,
		)
	}
	return valid, nil
}
