package tariff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/validation"
)

type Service struct {
	codes    CareCodeRepository
	periods  ValidityPeriodRepository
	tx       db.TxRunner
	observer validation.Observer
}

func NewService(codes CareCodeRepository, periods ValidityPeriodRepository, tx db.TxRunner) *Service {
	return &Service{codes: codes, periods: periods, tx: tx}
}

// SetObserver attaches an optional rejection observer.
func (s *Service) SetObserver(o validation.Observer) { s.observer = o }

// -- CareCode --

func (s *Service) CreateCareCode(ctx context.Context, c *CareCode) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := validation.Reject(s.observer, "care_code", ValidateCareCode(c)); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.codes.Create(ctx, c); err != nil {
			return fmt.Errorf("create care code %s: %w", c.Code, err)
		}
		if err := s.codes.SetExclusions(ctx, c.ID, c.ExclusiveWith); err != nil {
			return fmt.Errorf("set exclusions: %w", err)
		}
		for i := range c.Periods {
			c.Periods[i].CareCodeID = c.ID
			if err := s.addPeriod(ctx, &c.Periods[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) GetCareCode(ctx context.Context, id uuid.UUID) (*CareCode, error) {
	return s.codes.GetByID(ctx, id)
}

func (s *Service) GetCareCodeByCode(ctx context.Context, code string) (*CareCode, error) {
	return s.codes.GetByCode(ctx, code)
}

func (s *Service) UpdateCareCode(ctx context.Context, c *CareCode) error {
	if err := validation.Reject(s.observer, "care_code", ValidateCareCode(c)); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.codes.Update(ctx, c); err != nil {
			return fmt.Errorf("update care code %s: %w", c.Code, err)
		}
		return s.codes.SetExclusions(ctx, c.ID, c.ExclusiveWith)
	})
}

func (s *Service) DeleteCareCode(ctx context.Context, id uuid.UUID) error {
	return s.codes.Delete(ctx, id)
}

func (s *Service) ListCareCodes(ctx context.Context, limit, offset int) ([]*CareCode, int, error) {
	return s.codes.List(ctx, limit, offset)
}

// Catalog returns the care codes for ids keyed by ID. Unknown ids are
// reported as an error.
func (s *Service) Catalog(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*CareCode, error) {
	codes, err := s.codes.ListByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("load care codes: %w", err)
	}
	out := make(map[uuid.UUID]*CareCode, len(codes))
	for _, c := range codes {
		out[c.ID] = c
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("care code %s: %w", id, db.ErrNotFound)
		}
	}
	return out, nil
}

// Price returns the gross and net amounts of one act of careCodeID on day.
func (s *Service) Price(ctx context.Context, careCodeID uuid.UUID, day time.Time, privatePatient, participationStatutaire bool) (gross, net decimal.Decimal, err error) {
	c, err := s.codes.GetByID(ctx, careCodeID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get care code: %w", err)
	}
	return c.GrossAmount(day), c.NetAmount(day, privatePatient, participationStatutaire), nil
}

// -- ValidityPeriod --

func (s *Service) AddValidityPeriod(ctx context.Context, p *ValidityPeriod) error {
	if p.CareCodeID == uuid.Nil {
		return fmt.Errorf("care_code_id is required")
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.addPeriod(ctx, p)
	})
}

func (s *Service) addPeriod(ctx context.Context, p *ValidityPeriod) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	siblings, err := s.periods.ListByCareCode(ctx, p.CareCodeID)
	if err != nil {
		return fmt.Errorf("list validity periods: %w", err)
	}
	if err := validation.Reject(s.observer, "validity_period", ValidatePeriod(*p, siblings)); err != nil {
		return err
	}
	return s.periods.Create(ctx, p)
}

func (s *Service) UpdateValidityPeriod(ctx context.Context, p *ValidityPeriod) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.periods.GetByID(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("get validity period: %w", err)
		}
		p.CareCodeID = existing.CareCodeID
		siblings, err := s.periods.ListByCareCode(ctx, p.CareCodeID)
		if err != nil {
			return fmt.Errorf("list validity periods: %w", err)
		}
		if err := validation.Reject(s.observer, "validity_period", ValidatePeriod(*p, siblings)); err != nil {
			return err
		}
		return s.periods.Update(ctx, p)
	})
}

func (s *Service) DeleteValidityPeriod(ctx context.Context, id uuid.UUID) error {
	return s.periods.Delete(ctx, id)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
