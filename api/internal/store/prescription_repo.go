// Package store persists processed prescriptions: one flat record per
// upload plus its medication sub-records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediscribe/api/internal/pharmacist"
)

var ErrNotFound = sql.ErrNoRows

// Prescription statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusError     = "error"
)

type Prescription struct {
	ID           int64
	UID          uuid.UUID
	ImagePath    string
	RawText      string
	UrduText     string
	AudioPath    string
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	Medications  []pharmacist.Medication
}

type PrescriptionRepo struct{ DB *sql.DB }

func NewPrescriptionRepo(db *sql.DB) *PrescriptionRepo { return &PrescriptionRepo{DB: db} }

// Migrate creates the schema when missing. Idempotent.
func (r *PrescriptionRepo) Migrate(ctx context.Context) error {
	const q = `
create table if not exists prescriptions (
  id            bigserial primary key,
  uid           uuid not null unique,
  image_path    text not null,
  raw_text      text,
  urdu_text     text,
  audio_path    text,
  status        text not null default 'pending',
  error_message text,
  created_at    timestamptz not null default now()
);
create table if not exists prescription_medications (
  id              bigserial primary key,
  prescription_id bigint not null references prescriptions(id) on delete cascade,
  name            text not null,
  dose            text,
  schedule        text,
  confidence      text
)`
	_, err := r.DB.ExecContext(ctx, q)
	return err
}

// Create inserts a pending record for a freshly uploaded image.
func (r *PrescriptionRepo) Create(ctx context.Context, uid uuid.UUID, imagePath string) (int64, error) {
	const q = `
insert into prescriptions (uid, image_path, status)
values ($1, $2, $3)
returning id`
	var id int64
	if err := r.DB.QueryRowContext(ctx, q, uid, imagePath, StatusPending).Scan(&id); err != nil {
		return 0, fmt.Errorf("create prescription: %w", err)
	}
	return id, nil
}

// SaveResult marks the record processed and attaches the pipeline output,
// medication rows included, in one transaction.
func (r *PrescriptionRepo) SaveResult(ctx context.Context, id int64,
	rawText, urduText, audioPath string, meds []pharmacist.Medication) error {

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const upd = `
update prescriptions
set raw_text = $2, urdu_text = $3, audio_path = $4, status = $5, error_message = null
where id = $1`
	if _, err := tx.ExecContext(ctx, upd, id, rawText, urduText, audioPath, StatusProcessed); err != nil {
		return fmt.Errorf("update prescription %d: %w", id, err)
	}

	const ins = `
insert into prescription_medications (prescription_id, name, dose, schedule, confidence)
values ($1, $2, $3, $4, $5)`
	for _, m := range meds {
		if _, err := tx.ExecContext(ctx, ins, id, m.Name, m.Dose, m.Schedule, string(m.Confidence)); err != nil {
			return fmt.Errorf("insert medication for %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// MarkError records a failed run. rawText may carry whatever the
// extraction stage produced before the failure.
func (r *PrescriptionRepo) MarkError(ctx context.Context, id int64, message, rawText string) error {
	const q = `
update prescriptions
set status = $2, error_message = $3, raw_text = coalesce(nullif($4, ''), raw_text)
where id = $1`
	_, err := r.DB.ExecContext(ctx, q, id, StatusError, message, rawText)
	return err
}

// GetByUID fetches one prescription with its medications.
func (r *PrescriptionRepo) GetByUID(ctx context.Context, uid uuid.UUID) (*Prescription, error) {
	const q = `
select id, uid, image_path,
       coalesce(raw_text,'') as raw_text,
       coalesce(urdu_text,'') as urdu_text,
       coalesce(audio_path,'') as audio_path,
       status,
       coalesce(error_message,'') as error_message,
       created_at
from prescriptions
where uid = $1`
	p := &Prescription{}
	err := r.DB.QueryRowContext(ctx, q, uid).Scan(
		&p.ID, &p.UID, &p.ImagePath, &p.RawText, &p.UrduText,
		&p.AudioPath, &p.Status, &p.ErrorMessage, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.Medications, err = r.medications(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns prescriptions newest first, medications included.
func (r *PrescriptionRepo) List(ctx context.Context, limit int) ([]*Prescription, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
select id, uid, image_path,
       coalesce(raw_text,'') as raw_text,
       coalesce(urdu_text,'') as urdu_text,
       coalesce(audio_path,'') as audio_path,
       status,
       coalesce(error_message,'') as error_message,
       created_at
from prescriptions
order by created_at desc
limit $1`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		p := &Prescription{}
		if err := rows.Scan(&p.ID, &p.UID, &p.ImagePath, &p.RawText, &p.UrduText,
			&p.AudioPath, &p.Status, &p.ErrorMessage, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		if p.Medications, err = r.medications(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a prescription; medication rows go with it via cascade.
func (r *PrescriptionRepo) Delete(ctx context.Context, uid uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx, `delete from prescriptions where uid = $1`, uid)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PrescriptionRepo) medications(ctx context.Context, prescriptionID int64) ([]pharmacist.Medication, error) {
	const q = `
select name, coalesce(dose,''), coalesce(schedule,''), coalesce(confidence,'')
from prescription_medications
where prescription_id = $1
order by id`
	rows, err := r.DB.QueryContext(ctx, q, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []pharmacist.Medication
	for rows.Next() {
		var m pharmacist.Medication
		var conf string
		if err := rows.Scan(&m.Name, &m.Dose, &m.Schedule, &conf); err != nil {
			return nil, err
		}
		m.Confidence = pharmacist.Confidence(conf)
		meds = append(meds, m)
	}
	return meds, rows.Err()
}
