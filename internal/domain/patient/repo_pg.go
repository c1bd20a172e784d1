package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/homecare/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const patientCols = `id, code_sn, first_name, name, address, zipcode, city, country,
	phone_number, email, participation_statutaire, is_private, date_of_death,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.CodeSN, &p.FirstName, &p.Name, &p.Address, &p.ZipCode, &p.City, &p.Country,
		&p.PhoneNumber, &p.Email, &p.ParticipationStatutaire, &p.IsPrivate, &p.DateOfDeath,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, code_sn, first_name, name, address, zipcode, city, country,
			phone_number, email, participation_statutaire, is_private, date_of_death)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.CodeSN, p.FirstName, p.Name, p.Address, p.ZipCode, p.City, p.Country,
		p.PhoneNumber, p.Email, p.ParticipationStatutaire, p.IsPrivate, p.DateOfDeath,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET code_sn=$2, first_name=$3, name=$4, address=$5, zipcode=$6, city=$7,
			country=$8, phone_number=$9, email=$10, participation_statutaire=$11, is_private=$12,
			date_of_death=$13, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.CodeSN, p.FirstName, p.Name, p.Address, p.ZipCode, p.City,
		p.Country, p.PhoneNumber, p.Email, p.ParticipationStatutaire, p.IsPrivate,
		p.DateOfDeath)
	if err != nil {
		return db.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) SearchByName(ctx context.Context, q string, private *bool, limit int) ([]*Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patient
		WHERE (name ILIKE $1 OR first_name ILIKE $1)`
	args := []interface{}{"%" + q + "%"}
	if private != nil {
		query += ` AND is_private = $2`
		args = append(args, *private)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY name, first_name LIMIT $%d`, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) CodeSNTaken(ctx context.Context, code string, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient WHERE code_sn = $1 AND NOT is_private AND id <> $2)`,
		code, excludeID).Scan(&taken)
	return taken, err
}

func (r *patientRepoPG) LastPrestationAt(ctx context.Context, patientID uuid.UUID) (*time.Time, error) {
	var at *time.Time
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT MAX(p.date) FROM prestation p
		JOIN invoice_item i ON i.id = p.invoice_item_id
		WHERE i.patient_id = $1`, patientID).Scan(&at)
	return at, err
}

func (r *patientRepoPG) CountPrestationsBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM prestation p
		JOIN invoice_item i ON i.id = p.invoice_item_id
		WHERE i.patient_id = $1 AND p.date BETWEEN $2 AND $3`, patientID, from, to).Scan(&n)
	return n, err
}

// =========== Hospitalization Repository ===========

type hospitalizationRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalizationRepoPG(pool *pgxpool.Pool) HospitalizationRepository {
	return &hospitalizationRepoPG{pool: pool}
}

func (r *hospitalizationRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const hospCols = `id, patient_id, start_date, end_date, description`

func scanHospitalization(row pgx.Row) (Hospitalization, error) {
	var h Hospitalization
	err := row.Scan(&h.ID, &h.PatientID, &h.Start, &h.End, &h.Description)
	return h, err
}

func (r *hospitalizationRepoPG) Create(ctx context.Context, h *Hospitalization) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospitalization (id, patient_id, start_date, end_date, description)
		VALUES ($1,$2,$3,$4,$5)`,
		h.ID, h.PatientID, h.Start, h.End, h.Description)
	return db.ClassifyError(err)
}

func (r *hospitalizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospitalization, error) {
	h, err := scanHospitalization(r.conn(ctx).QueryRow(ctx, `SELECT `+hospCols+` FROM hospitalization WHERE id = $1`, id))
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &h, nil
}

func (r *hospitalizationRepoPG) Update(ctx context.Context, h *Hospitalization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospitalization SET start_date=$2, end_date=$3, description=$4
		WHERE id = $1`,
		h.ID, h.Start, h.End, h.Description)
	return err
}

func (r *hospitalizationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospitalization WHERE id = $1`, id)
	return err
}

func (r *hospitalizationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Hospitalization, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hospCols+` FROM hospitalization WHERE patient_id = $1 ORDER BY start_date`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Hospitalization
	for rows.Next() {
		h, err := scanHospitalization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =========== Physician Repository ===========

type physicianRepoPG struct{ pool *pgxpool.Pool }

func NewPhysicianRepoPG(pool *pgxpool.Pool) PhysicianRepository { return &physicianRepoPG{pool: pool} }

func (r *physicianRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const physicianCols = `id, provider_code, first_name, name, address, zipcode, city, country,
	phone_number, fax_number, email`

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	err := row.Scan(&p.ID, &p.ProviderCode, &p.FirstName, &p.Name, &p.Address, &p.ZipCode, &p.City, &p.Country,
		&p.PhoneNumber, &p.FaxNumber, &p.Email)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &p, nil
}

func (r *physicianRepoPG) Create(ctx context.Context, p *Physician) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO physician (id, provider_code, first_name, name, address, zipcode, city, country,
			phone_number, fax_number, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.ProviderCode, p.FirstName, p.Name, p.Address, p.ZipCode, p.City, p.Country,
		p.PhoneNumber, p.FaxNumber, p.Email)
	return db.ClassifyError(err)
}

func (r *physicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return scanPhysician(r.conn(ctx).QueryRow(ctx, `SELECT `+physicianCols+` FROM physician WHERE id = $1`, id))
}

func (r *physicianRepoPG) Update(ctx context.Context, p *Physician) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE physician SET provider_code=$2, first_name=$3, name=$4, address=$5, zipcode=$6,
			city=$7, country=$8, phone_number=$9, fax_number=$10, email=$11
		WHERE id = $1`,
		p.ID, p.ProviderCode, p.FirstName, p.Name, p.Address, p.ZipCode,
		p.City, p.Country, p.PhoneNumber, p.FaxNumber, p.Email)
	return err
}

func (r *physicianRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM physician WHERE id = $1`, id)
	return err
}

func (r *physicianRepoPG) List(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM physician`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+physicianCols+` FROM physician ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Physician
	for rows.Next() {
		p, err := scanPhysician(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== MedicalPrescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const rxCols = `id, physician_id, patient_id, date, end_date, file_id, created_at, updated_at`

func scanPrescription(row pgx.Row) (*MedicalPrescription, error) {
	var rx MedicalPrescription
	err := row.Scan(&rx.ID, &rx.PhysicianID, &rx.PatientID, &rx.Date, &rx.EndDate, &rx.FileID,
		&rx.CreatedAt, &rx.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &rx, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, rx *MedicalPrescription) error {
	if rx.ID == uuid.Nil {
		rx.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_prescription (id, physician_id, patient_id, date, end_date, file_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		rx.ID, rx.PhysicianID, rx.PatientID, rx.Date, rx.EndDate, rx.FileID,
	).Scan(&rx.CreatedAt, &rx.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalPrescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM medical_prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) Update(ctx context.Context, rx *MedicalPrescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_prescription SET physician_id=$2, patient_id=$3, date=$4, end_date=$5,
			file_id=$6, updated_at=NOW()
		WHERE id = $1`,
		rx.ID, rx.PhysicianID, rx.PatientID, rx.Date, rx.EndDate, rx.FileID)
	return err
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_prescription WHERE id = $1`, id)
	return err
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM medical_prescription WHERE patient_id = $1 ORDER BY date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*MedicalPrescription
	for rows.Next() {
		rx, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rx)
	}
	return items, rows.Err()
}
