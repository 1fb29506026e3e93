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
	insertCertificateQuery = `INSERT INTO certificates (
    id,
    common_name,
    team_id,
    valid_to,
    created_at
) VALUES (?, ?, ?, ?, ?)`

	selectCertificateBase = `SELECT
    id,
    common_name,
    team_id,
    valid_to,
    deleted_at,
    created_at
FROM certificates`

	// valid_to is compared as fixed-width UTC text.
	listExpiringCertificatesQuery = selectCertificateBase + `
WHERE deleted_at IS NULL
  AND valid_to > ?
  AND valid_to <= ?
ORDER BY valid_to ASC, id ASC`

	softDeleteCertificateQuery = `UPDATE certificates
SET deleted_at = ?
WHERE id = ? AND deleted_at IS NULL`

	insertServiceIDQuery = `INSERT INTO service_ids (
    id,
    name,
    renewing_team_id,
    exp_date,
    created_at
) VALUES (?, ?, ?, ?, ?)`

	selectServiceIDBase = `SELECT
    id,
    name,
    renewing_team_id,
    exp_date,
    created_at
FROM service_ids`

	listExpiringServiceIDsQuery = selectServiceIDBase + `
WHERE exp_date > ?
  AND exp_date <= ?
ORDER BY exp_date ASC, id ASC`
)

// CreateCertificate inserts a certificate. An empty ID is replaced with a new UUID.
func (db *DB) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate payload is required")
	}
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := db.writeDB.ExecContext(ctx, insertCertificateQuery,
		cert.ID,
		cert.CommonName,
		cert.TeamID,
		formatTime(cert.ValidTo),
		formatTime(now),
	); err != nil {
		db.log.Error("failed to create certificate record in db", "error", err, "common_name", cert.CommonName)
		return fmt.Errorf("error creating certificate: %w", err)
	}
	cert.CreatedAt = now
	return nil
}

// GetCertificate retrieves a certificate by ID, including soft-deleted ones.
func (db *DB) GetCertificate(ctx context.Context, id string) (*models.Certificate, error) {
	row := db.readDB.QueryRowContext(ctx, selectCertificateBase+" WHERE id = ?", id)
	cert, err := scanCertificate(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting certificate %s", id))
	}
	return cert, nil
}

// SoftDeleteCertificate marks a certificate deleted so it drops out of expiry checks.
func (db *DB) SoftDeleteCertificate(ctx context.Context, id string, at time.Time) error {
	res, err := db.writeDB.ExecContext(ctx, softDeleteCertificateQuery, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("deleting certificate %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListExpiringCertificates returns live certificates with from < valid_to <= to.
func (db *DB) ListExpiringCertificates(ctx context.Context, from, to time.Time) ([]*models.Certificate, error) {
	rows, err := db.readDB.QueryContext(ctx, listExpiringCertificatesQuery, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring certificates: %w", err)
	}
	return certs, nil
}

// CreateServiceID inserts a service ID. An empty ID is replaced with a new UUID.
func (db *DB) CreateServiceID(ctx context.Context, sid *models.ServiceID) error {
	if sid == nil {
		return fmt.Errorf("service id payload is required")
	}
	if sid.ID == "" {
		sid.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := db.writeDB.ExecContext(ctx, insertServiceIDQuery,
		sid.ID,
		sid.Name,
		sid.RenewingTeamID,
		formatTime(sid.ExpDate),
		formatTime(now),
	); err != nil {
		db.log.Error("failed to create service id record in db", "error", err, "name", sid.Name)
		return fmt.Errorf("error creating service id: %w", err)
	}
	sid.CreatedAt = now
	return nil
}

// ListExpiringServiceIDs returns service IDs with from < exp_date <= to.
func (db *DB) ListExpiringServiceIDs(ctx context.Context, from, to time.Time) ([]*models.ServiceID, error) {
	rows, err := db.readDB.QueryContext(ctx, listExpiringServiceIDsQuery, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring service ids: %w", err)
	}
	defer rows.Close()

	var sids []*models.ServiceID
	for rows.Next() {
		sid, err := scanServiceID(rows)
		if err != nil {
			return nil, err
		}
		sids = append(sids, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring service ids: %w", err)
	}
	return sids, nil
}

func scanCertificate(scanner interface{ Scan(dest ...any) error }) (*models.Certificate, error) {
	var (
		cert               models.Certificate
		validTo, createdAt string
		deletedAt          sql.NullString
	)
	if err := scanner.Scan(&cert.ID, &cert.CommonName, &cert.TeamID, &validTo, &deletedAt, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan certificate: %w", err)
	}

	var err error
	if cert.ValidTo, err = parseTime(validTo); err != nil {
		return nil, err
	}
	if cert.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if cert.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	return &cert, nil
}

func scanServiceID(scanner interface{ Scan(dest ...any) error }) (*models.ServiceID, error) {
	var (
		sid                models.ServiceID
		expDate, createdAt string
	)
	if err := scanner.Scan(&sid.ID, &sid.Name, &sid.RenewingTeamID, &expDate, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan service id: %w", err)
	}

	var err error
	if sid.ExpDate, err = parseTime(expDate); err != nil {
		return nil, err
	}
	if sid.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &sid, nil
}
