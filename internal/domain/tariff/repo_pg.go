package tariff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/homecare/internal/platform/db"
)

// =========== CareCode Repository ===========

type careCodeRepoPG struct{ pool *pgxpool.Pool }

func NewCareCodeRepoPG(pool *pgxpool.Pool) CareCodeRepository { return &careCodeRepoPG{pool: pool} }

func (r *careCodeRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const careCodeCols = `id, code, name, description, reimbursed, contribution_undue, created_at, updated_at`

func (r *careCodeRepoPG) scanCareCode(row pgx.Row) (*CareCode, error) {
	var c CareCode
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Reimbursed, &c.ContributionUndue,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &c, nil
}

// load fills the exclusions and validity periods of c.
func (r *careCodeRepoPG) load(ctx context.Context, c *CareCode) error {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT exclusive_id FROM care_code_exclusion WHERE care_code_id = $1 ORDER BY exclusive_id`, c.ID)
	if err != nil {
		return fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()
	c.ExclusiveWith = nil
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan exclusion: %w", err)
		}
		c.ExclusiveWith = append(c.ExclusiveWith, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	periods, err := listPeriods(ctx, r.conn(ctx), c.ID)
	if err != nil {
		return err
	}
	c.Periods = periods
	return nil
}

func (r *careCodeRepoPG) Create(ctx context.Context, c *CareCode) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO care_code (id, code, name, description, reimbursed, contribution_undue)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.Name, c.Description, c.Reimbursed, c.ContributionUndue,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return db.ClassifyError(err)
}

func (r *careCodeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CareCode, error) {
	c, err := r.scanCareCode(r.conn(ctx).QueryRow(ctx, `SELECT `+careCodeCols+` FROM care_code WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return c, r.load(ctx, c)
}

func (r *careCodeRepoPG) GetByCode(ctx context.Context, code string) (*CareCode, error) {
	c, err := r.scanCareCode(r.conn(ctx).QueryRow(ctx, `SELECT `+careCodeCols+` FROM care_code WHERE code = $1`, code))
	if err != nil {
		return nil, err
	}
	return c, r.load(ctx, c)
}

func (r *careCodeRepoPG) Update(ctx context.Context, c *CareCode) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_code SET code=$2, name=$3, description=$4, reimbursed=$5,
			contribution_undue=$6, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Code, c.Name, c.Description, c.Reimbursed, c.ContributionUndue)
	if err != nil {
		return db.ClassifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *careCodeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_code WHERE id = $1`, id)
	return err
}

func (r *careCodeRepoPG) List(ctx context.Context, limit, offset int) ([]*CareCode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM care_code`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+careCodeCols+` FROM care_code ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, rows)
	return items, total, err
}

func (r *careCodeRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*CareCode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+careCodeCols+` FROM care_code WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *careCodeRepoPG) collect(ctx context.Context, rows pgx.Rows) ([]*CareCode, error) {
	var items []*CareCode
	for rows.Next() {
		c, err := r.scanCareCode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range items {
		if err := r.load(ctx, c); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *careCodeRepoPG) SetExclusions(ctx context.Context, id uuid.UUID, exclusive []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_code_exclusion WHERE care_code_id = $1`, id); err != nil {
		return err
	}
	for _, ex := range exclusive {
		if _, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO care_code_exclusion (care_code_id, exclusive_id) VALUES ($1, $2)`, id, ex); err != nil {
			return db.ClassifyError(err)
		}
	}
	return nil
}

// =========== ValidityPeriod Repository ===========

type periodRepoPG struct{ pool *pgxpool.Pool }

func NewValidityPeriodRepoPG(pool *pgxpool.Pool) ValidityPeriodRepository {
	return &periodRepoPG{pool: pool}
}

func (r *periodRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const periodCols = `id, care_code_id, start_date, end_date, gross_amount`

func scanPeriod(row pgx.Row) (ValidityPeriod, error) {
	var p ValidityPeriod
	err := row.Scan(&p.ID, &p.CareCodeID, &p.Start, &p.End, &p.GrossAmount)
	return p, err
}

func listPeriods(ctx context.Context, q db.Queryable, careCodeID uuid.UUID) ([]ValidityPeriod, error) {
	rows, err := q.Query(ctx, `SELECT `+periodCols+` FROM validity_period WHERE care_code_id = $1 ORDER BY start_date`, careCodeID)
	if err != nil {
		return nil, fmt.Errorf("query validity periods: %w", err)
	}
	defer rows.Close()
	var out []ValidityPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *periodRepoPG) Create(ctx context.Context, p *ValidityPeriod) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO validity_period (id, care_code_id, start_date, end_date, gross_amount)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.CareCodeID, p.Start, p.End, p.GrossAmount)
	return db.ClassifyError(err)
}

func (r *periodRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ValidityPeriod, error) {
	p, err := scanPeriod(r.conn(ctx).QueryRow(ctx, `SELECT `+periodCols+` FROM validity_period WHERE id = $1`, id))
	if err != nil {
		return nil, db.ClassifyError(err)
	}
	return &p, nil
}

func (r *periodRepoPG) Update(ctx context.Context, p *ValidityPeriod) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE validity_period SET start_date=$2, end_date=$3, gross_amount=$4
		WHERE id = $1`,
		p.ID, p.Start, p.End, p.GrossAmount)
	return err
}

func (r *periodRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM validity_period WHERE id = $1`, id)
	return err
}

func (r *periodRepoPG) ListByCareCode(ctx context.Context, careCodeID uuid.UUID) ([]ValidityPeriod, error) {
	return listPeriods(ctx, r.conn(ctx), careCodeID)
}
