package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mr-karan/certwatch/pkg/models"
)

const (
	insertTeamQuery = `INSERT INTO teams (
    id,
    name,
    alert1,
    alert2,
    alert3,
    escalation,
    created_at,
    updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectTeamBase = `SELECT
    id,
    name,
    alert1,
    alert2,
    alert3,
    escalation,
    created_at,
    updated_at
FROM teams`

	updateTeamContactsQuery = `UPDATE teams
SET alert1 = ?,
    alert2 = ?,
    alert3 = ?,
    escalation = ?,
    updated_at = ?
WHERE id = ?`
)

// CreateTeam inserts a team. An empty ID is replaced with a new UUID.
func (db *DB) CreateTeam(ctx context.Context, team *models.Team) error {
	if team == nil {
		return fmt.Errorf("team payload is required")
	}
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)

	_, err := db.writeDB.ExecContext(ctx, insertTeamQuery,
		team.ID,
		team.Name,
		nullableString(team.Alert1),
		nullableString(team.Alert2),
		nullableString(team.Alert3),
		nullableString(team.Escalation),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("team %q already exists: %w", team.Name, err)
		}
		db.log.Error("failed to create team record in db", "error", err, "name", team.Name)
		return fmt.Errorf("error creating team: %w", err)
	}
	team.CreatedAt = now
	team.UpdatedAt = now
	return nil
}

// GetTeam retrieves a team by ID. Returns ErrNotFound if it does not exist.
func (db *DB) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	row := db.readDB.QueryRowContext(ctx, selectTeamBase+" WHERE id = ?", teamID)
	team, err := scanTeam(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting team %s", teamID))
	}
	return team, nil
}

// ListTeams returns all teams ordered by name.
func (db *DB) ListTeams(ctx context.Context) ([]*models.Team, error) {
	rows, err := db.readDB.QueryContext(ctx, selectTeamBase+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}
	return teams, nil
}

// UpdateTeamContacts replaces the four contact tiers of a team.
func (db *DB) UpdateTeamContacts(ctx context.Context, team *models.Team) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := db.writeDB.ExecContext(ctx, updateTeamContactsQuery,
		nullableString(team.Alert1),
		nullableString(team.Alert2),
		nullableString(team.Alert3),
		nullableString(team.Escalation),
		formatTime(now),
		team.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update team contacts: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("updating team %s: %w", team.ID, ErrNotFound)
	}
	team.UpdatedAt = now
	return nil
}

func scanTeam(scanner interface{ Scan(dest ...any) error }) (*models.Team, error) {
	var (
		team                               models.Team
		alert1, alert2, alert3, escalation sql.NullString
		createdAt, updatedAt               string
	)
	if err := scanner.Scan(&team.ID, &team.Name, &alert1, &alert2, &alert3, &escalation, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan team: %w", err)
	}
	team.Alert1 = alert1.String
	team.Alert2 = alert2.String
	team.Alert3 = alert3.String
	team.Escalation = escalation.String

	var err error
	if team.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if team.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &team, nil
}
