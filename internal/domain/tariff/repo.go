package tariff

import (
	"context"

	"github.com/google/uuid"
)

type CareCodeRepository interface {
	Create(ctx context.Context, c *CareCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*CareCode, error)
	GetByCode(ctx context.Context, code string) (*CareCode, error)
	Update(ctx context.Context, c *CareCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*CareCode, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*CareCode, error)
	// SetExclusions replaces the mutually exclusive codes declared by id.
	SetExclusions(ctx context.Context, id uuid.UUID, exclusive []uuid.UUID) error
}

type ValidityPeriodRepository interface {
	Create(ctx context.Context, p *ValidityPeriod) error
	GetByID(ctx context.Context, id uuid.UUID) (*ValidityPeriod, error)
	Update(ctx context.Context, p *ValidityPeriod) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCareCode(ctx context.Context, careCodeID uuid.UUID) ([]ValidityPeriod, error)
}
