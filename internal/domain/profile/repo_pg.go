package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const profileCols = `user_id, first_name, last_name, middle_initial, dob, gender, race,
	address, city, state, zip, email, phone, primary_care, current_medications,
	allergies, pharmacy, fax, bill_to, relationship, responsible_party_address,
	responsible_party_phone, city_state_zip, consent, photo_url, created_at, updated_at`

func (r *profileRepoPG) scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.MiddleInitial, &p.DOB, &p.Gender, &p.Race,
		&p.Address, &p.City, &p.State, &p.Zip, &p.Email, &p.Phone, &p.PrimaryCare, &p.CurrentMedications,
		&p.Allergies, &p.Pharmacy, &p.Fax, &p.BillTo, &p.Relationship, &p.ResponsiblePartyAddress,
		&p.ResponsiblePartyPhone, &p.CityStateZip, &p.Consent, &p.PhotoURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func medications(p *Profile) []string {
	if p.CurrentMedications == nil {
		return []string{}
	}
	return p.CurrentMedications
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profile (user_id, first_name, last_name, middle_initial, dob, gender, race,
			address, city, state, zip, email, phone, primary_care, current_medications,
			allergies, pharmacy, fax, bill_to, relationship, responsible_party_address,
			responsible_party_phone, city_state_zip, consent, photo_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING created_at, updated_at`,
		p.UserID, p.FirstName, p.LastName, p.MiddleInitial, p.DOB, p.Gender, p.Race,
		p.Address, p.City, p.State, p.Zip, p.Email, p.Phone, p.PrimaryCare, medications(p),
		p.Allergies, p.Pharmacy, p.Fax, p.BillTo, p.Relationship, p.ResponsiblePartyAddress,
		p.ResponsiblePartyPhone, p.CityStateZip, p.Consent, p.PhotoURL,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *profileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return r.scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE user_id = $1`, userID))
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE profile SET first_name=$2, last_name=$3, middle_initial=$4, dob=$5, gender=$6, race=$7,
			address=$8, city=$9, state=$10, zip=$11, email=$12, phone=$13, primary_care=$14,
			current_medications=$15, allergies=$16, pharmacy=$17, fax=$18, bill_to=$19,
			relationship=$20, responsible_party_address=$21, responsible_party_phone=$22,
			city_state_zip=$23, consent=$24, photo_url=$25, updated_at=NOW()
		WHERE user_id = $1
		RETURNING updated_at`,
		p.UserID, p.FirstName, p.LastName, p.MiddleInitial, p.DOB, p.Gender, p.Race,
		p.Address, p.City, p.State, p.Zip, p.Email, p.Phone, p.PrimaryCare,
		medications(p), p.Allergies, p.Pharmacy, p.Fax, p.BillTo,
		p.Relationship, p.ResponsiblePartyAddress, p.ResponsiblePartyPhone,
		p.CityStateZip, p.Consent, p.PhotoURL,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *profileRepoPG) UpdatePharmacy(ctx context.Context, userID uuid.UUID, pharmacy string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE profile SET pharmacy=$2, updated_at=NOW() WHERE user_id = $1`, userID, pharmacy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Change History Repository ===========

type changeRepoPG struct{ pool *pgxpool.Pool }

func NewChangeRepoPG(pool *pgxpool.Pool) ChangeRepository {
	return &changeRepoPG{pool: pool}
}

func (r *changeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *changeRepoPG) Append(ctx context.Context, e *ChangeEntry) error {
	e.ID = uuid.New()
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profile_change (id, user_id, changes)
		VALUES ($1, $2, $3)
		RETURNING changed_at`,
		e.ID, e.UserID, changes,
	).Scan(&e.ChangedAt)
}

func (r *changeRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChangeEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM profile_change WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, changes, changed_at FROM profile_change
		WHERE user_id = $1 ORDER BY changed_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ChangeEntry
	for rows.Next() {
		var e ChangeEntry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.UserID, &raw, &e.ChangedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(raw, &e.Changes); err != nil {
			return nil, 0, fmt.Errorf("decode changes %s: %w", e.ID, err)
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
