package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/homecare/internal/platform/db"
)

// =========== InvoiceItem Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const invoiceCols = `id, invoice_number, invoice_date, patient_id, is_private, accident_id, accident_date,
	patient_invoice_date, invoice_send_date, invoice_sent, invoice_paid, batch_id,
	medical_prescription_id, is_valid, validation_comment, created_at, updated_at`

func scanInvoice(row pgx.Row) (*InvoiceItem, error) {
	var i InvoiceItem
	err := row.Scan(&i.ID, &i.Number, &i.Date, &i.PatientID, &i.IsPrivate, &i.AccidentID, &i.AccidentDate,
		&i.PatientInvoiceDate, &i.SendDate, &i.Sent, &i.Paid, &i.BatchID,
		&i.PrescriptionID, &i.IsValid, &i.ValidationComment, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &i, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, i *InvoiceItem) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice_item (id, invoice_number, invoice_date, patient_id, is_private, accident_id,
			accident_date, patient_invoice_date, invoice_send_date, invoice_sent, invoice_paid, batch_id,
			medical_prescription_id, is_valid, validation_comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		i.ID, i.Number, i.Date, i.PatientID, i.IsPrivate, i.AccidentID,
		i.AccidentDate, i.PatientInvoiceDate, i.SendDate, i.Sent, i.Paid, i.BatchID,
		i.PrescriptionID, i.IsValid, i.ValidationComment,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceItem, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice_item WHERE id = $1`, id))
}

func (r *invoiceRepoPG) Update(ctx context.Context, i *InvoiceItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_item SET invoice_number=$2, invoice_date=$3, patient_id=$4, is_private=$5,
			accident_id=$6, accident_date=$7, patient_invoice_date=$8, invoice_send_date=$9,
			invoice_sent=$10, invoice_paid=$11, batch_id=$12, medical_prescription_id=$13,
			is_valid=$14, validation_comment=$15, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.Number, i.Date, i.PatientID, i.IsPrivate,
		i.AccidentID, i.AccidentDate, i.PatientInvoiceDate, i.SendDate,
		i.Sent, i.Paid, i.BatchID, i.PrescriptionID,
		i.IsValid, i.ValidationComment)
	if err != nil {
		return db.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *invoiceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_item WHERE id = $1`, id)
	return err
}

func (r *invoiceRepoPG) List(ctx context.Context, f InvoiceFilter) ([]*InvoiceItem, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.BatchID != nil {
		where = append(where, fmt.Sprintf("batch_id = $%d", idx))
		args = append(args, *f.BatchID)
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("invoice_date >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("invoice_date <= $%d", idx))
		args = append(args, *f.To)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice_item WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT `+invoiceCols+` FROM invoice_item WHERE %s ORDER BY invoice_number LIMIT $%d OFFSET $%d`,
		clause, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectInvoices(rows)
	return items, total, err
}

func (r *invoiceRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*InvoiceItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+invoiceCols+` FROM invoice_item WHERE id = ANY($1) ORDER BY invoice_number`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]*InvoiceItem, error) {
	var items []*InvoiceItem
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *invoiceRepoPG) NumericNumbers(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT invoice_number FROM invoice_item WHERE invoice_number ~ '^\d+$'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) AssignBatch(ctx context.Context, batchID uuid.UUID, from, to time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_item SET batch_id = $1, updated_at = NOW()
		WHERE batch_id IS NULL AND invoice_date BETWEEN $2 AND $3`,
		batchID, from, to)
	if err != nil {
		return 0, db.ClassifyError(err)
	}
	return int(tag.RowsAffected()), nil
}

// =========== Prestation Repository ===========

type prestationRepoPG struct{ pool *pgxpool.Pool }

func NewPrestationRepoPG(pool *pgxpool.Pool) PrestationRepository {
	return &prestationRepoPG{pool: pool}
}

func (r *prestationRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const prestationCols = `id, invoice_item_id, carecode_id, employee_id, quantity, date, at_home,
	at_home_paired_id, created_at, updated_at`

func scanPrestation(row pgx.Row) (*Prestation, error) {
	var p Prestation
	err := row.Scan(&p.ID, &p.InvoiceID, &p.CareCodeID, &p.EmployeeID, &p.Quantity, &p.Date, &p.AtHome,
		&p.PairedWithID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &p, nil
}

func (r *prestationRepoPG) Create(ctx context.Context, p *Prestation) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prestation (id, invoice_item_id, carecode_id, employee_id, quantity, date, at_home,
			at_home_paired_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.InvoiceID, p.CareCodeID, p.EmployeeID, p.Quantity, p.Date, p.AtHome, p.PairedWithID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *prestationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prestation, error) {
	return scanPrestation(r.conn(ctx).QueryRow(ctx, `SELECT `+prestationCols+` FROM prestation WHERE id = $1`, id))
}

func (r *prestationRepoPG) Update(ctx context.Context, p *Prestation) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prestation SET invoice_item_id=$2, carecode_id=$3, employee_id=$4, quantity=$5,
			date=$6, at_home=$7, at_home_paired_id=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.InvoiceID, p.CareCodeID, p.EmployeeID, p.Quantity,
		p.Date, p.AtHome, p.PairedWithID)
	if err != nil {
		return db.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *prestationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM prestation WHERE id = $1`, id)
	return err
}

func (r *prestationRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Prestation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prestationCols+` FROM prestation WHERE invoice_item_id = $1 ORDER BY date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Prestation
	for rows.Next() {
		p, err := scanPrestation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// =========== Employee Repository ===========

type employeeRepoPG struct{ pool *pgxpool.Pool }

func NewEmployeeRepoPG(pool *pgxpool.Pool) EmployeeRepository { return &employeeRepoPG{pool: pool} }

func (r *employeeRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const employeeCols = `id, abbreviation, first_name, name, provider_code, email, start_contract, end_contract`

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Abbreviation, &e.FirstName, &e.Name, &e.ProviderCode, &e.Email,
		&e.StartContract, &e.EndContract)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &e, nil
}

func (r *employeeRepoPG) Create(ctx context.Context, e *Employee) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO employee (id, abbreviation, first_name, name, provider_code, email, start_contract, end_contract)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.Abbreviation, e.FirstName, e.Name, e.ProviderCode, e.Email, e.StartContract, e.EndContract)
	return db.ClassifyError(err)
}

func (r *employeeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return scanEmployee(r.conn(ctx).QueryRow(ctx, `SELECT `+employeeCols+` FROM employee WHERE id = $1`, id))
}

func (r *employeeRepoPG) Update(ctx context.Context, e *Employee) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE employee SET abbreviation=$2, first_name=$3, name=$4, provider_code=$5, email=$6,
			start_contract=$7, end_contract=$8
		WHERE id = $1`,
		e.ID, e.Abbreviation, e.FirstName, e.Name, e.ProviderCode, e.Email, e.StartContract, e.EndContract)
	return db.ClassifyError(err)
}

func (r *employeeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM employee WHERE id = $1`, id)
	return err
}

func (r *employeeRepoPG) List(ctx context.Context, limit, offset int) ([]*Employee, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM employee`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+employeeCols+` FROM employee ORDER BY abbreviation LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectEmployees(rows)
	return items, total, err
}

func (r *employeeRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Employee, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+employeeCols+` FROM employee WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func collectEmployees(rows pgx.Rows) ([]*Employee, error) {
	var items []*Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

func (r *batchRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const batchCols = `id, start_date, end_date, send_date, payment_date, file_id, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Start, &b.End, &b.SendDate, &b.PaymentDate, &b.FileID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &b, nil
}

func (r *batchRepoPG) Create(ctx context.Context, b *Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice_batch (id, start_date, end_date, send_date, payment_date, file_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		b.ID, b.Start, b.End, b.SendDate, b.PaymentDate, b.FileID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM invoice_batch WHERE id = $1`, id))
}

func (r *batchRepoPG) Update(ctx context.Context, b *Batch) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice_batch SET start_date=$2, end_date=$3, send_date=$4, payment_date=$5,
			file_id=$6, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.Start, b.End, b.SendDate, b.PaymentDate, b.FileID)
	if err != nil {
		return db.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *batchRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_batch WHERE id = $1`, id)
	return err
}

func (r *batchRepoPG) List(ctx context.Context, limit, offset int) ([]*Batch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice_batch`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+batchCols+` FROM invoice_batch ORDER BY start_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}
