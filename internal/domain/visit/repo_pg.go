package visit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepath/portal/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type ledgerPG struct{ pool *pgxpool.Pool }

func NewLedgerPG(pool *pgxpool.Pool) Ledger {
	return &ledgerPG{pool: pool}
}

func (r *ledgerPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, user_id, exposure_type, reason, diagnosis, medication_name,
	medication_directions, medication_qty, instruction, pharmacy_sent,
	first_name, last_name, dob, email, date_of_service, document_key, created_at`

func (r *ledgerPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.ExposureType, &rec.Reason, &rec.Diagnosis, &rec.MedicationName,
		&rec.MedicationDirections, &rec.MedicationQty, &rec.Instruction, &rec.PharmacySent,
		&rec.FirstName, &rec.LastName, &rec.DOB, &rec.Email, &rec.DateOfService, &rec.DocumentKey, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Append is idempotent on the record id. A retried finalize whose first
// insert committed gets the stored row's created_at back and leaves the row
// untouched.
func (r *ledgerPG) Append(ctx context.Context, rec *Record) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_record (id, user_id, exposure_type, reason, diagnosis, medication_name,
			medication_directions, medication_qty, instruction, pharmacy_sent,
			first_name, last_name, dob, email, date_of_service, document_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING created_at`,
		rec.ID, rec.UserID, rec.ExposureType, rec.Reason, rec.Diagnosis, rec.MedicationName,
		rec.MedicationDirections, rec.MedicationQty, rec.Instruction, rec.PharmacySent,
		rec.FirstName, rec.LastName, rec.DOB, rec.Email, rec.DateOfService, rec.DocumentKey,
	).Scan(&rec.CreatedAt)
}

func (r *ledgerPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit_record WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM visit_record
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
