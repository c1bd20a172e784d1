package tariff

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/homecare/internal/platform/civil"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/validation"
)

// -- Mock Repositories --

type mockCareCodeRepo struct {
	store      map[uuid.UUID]*CareCode
	periods    *mockPeriodRepo
	exclusions map[uuid.UUID][]uuid.UUID
}

func newMockCareCodeRepo(periods *mockPeriodRepo) *mockCareCodeRepo {
	return &mockCareCodeRepo{store: make(map[uuid.UUID]*CareCode), periods: periods, exclusions: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *mockCareCodeRepo) hydrate(c *CareCode) *CareCode {
	out := *c
	out.ExclusiveWith = m.exclusions[c.ID]
	out.Periods, _ = m.periods.ListByCareCode(context.Background(), c.ID)
	return &out
}

func (m *mockCareCodeRepo) Create(_ context.Context, c *CareCode) error {
	for _, existing := range m.store {
		if existing.Code == c.Code {
			return db.ErrConflict
		}
	}
	stored := *c
	m.store[c.ID] = &stored
	return nil
}

func (m *mockCareCodeRepo) GetByID(_ context.Context, id uuid.UUID) (*CareCode, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return m.hydrate(c), nil
}

func (m *mockCareCodeRepo) GetByCode(_ context.Context, code string) (*CareCode, error) {
	for _, c := range m.store {
		if c.Code == code {
			return m.hydrate(c), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockCareCodeRepo) Update(_ context.Context, c *CareCode) error {
	if _, ok := m.store[c.ID]; !ok {
		return db.ErrNotFound
	}
	stored := *c
	m.store[c.ID] = &stored
	return nil
}

func (m *mockCareCodeRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockCareCodeRepo) List(_ context.Context, limit, offset int) ([]*CareCode, int, error) {
	var out []*CareCode
	for _, c := range m.store {
		out = append(out, m.hydrate(c))
	}
	return out, len(out), nil
}

func (m *mockCareCodeRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*CareCode, error) {
	var out []*CareCode
	for _, id := range ids {
		if c, ok := m.store[id]; ok {
			out = append(out, m.hydrate(c))
		}
	}
	return out, nil
}

func (m *mockCareCodeRepo) SetExclusions(_ context.Context, id uuid.UUID, exclusive []uuid.UUID) error {
	m.exclusions[id] = exclusive
	return nil
}

type mockPeriodRepo struct {
	store map[uuid.UUID]*ValidityPeriod
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{store: make(map[uuid.UUID]*ValidityPeriod)}
}

func (m *mockPeriodRepo) Create(_ context.Context, p *ValidityPeriod) error {
	stored := *p
	m.store[p.ID] = &stored
	return nil
}

func (m *mockPeriodRepo) GetByID(_ context.Context, id uuid.UUID) (*ValidityPeriod, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *mockPeriodRepo) Update(_ context.Context, p *ValidityPeriod) error {
	stored := *p
	m.store[p.ID] = &stored
	return nil
}

func (m *mockPeriodRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockPeriodRepo) ListByCareCode(_ context.Context, careCodeID uuid.UUID) ([]ValidityPeriod, error) {
	var out []ValidityPeriod
	for _, p := range m.store {
		if p.CareCodeID == careCodeID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newTestService() *Service {
	periods := newMockPeriodRepo()
	return NewService(newMockCareCodeRepo(periods), periods, db.PassthroughRunner{})
}

// -- Tests --

func TestService_CreateCareCodeWithPeriod(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	c := &CareCode{Code: "NF1", Name: "Soins", Reimbursed: true, Periods: []ValidityPeriod{
		{Start: civil.Date(2019, 5, 1), GrossAmount: dec("42.00")},
	}}
	require.NoError(t, s.CreateCareCode(ctx, c))
	assert.NotEqual(t, uuid.Nil, c.ID)

	gross, net, err := s.Price(ctx, c.ID, civil.Date(2019, 6, 1), false, false)
	require.NoError(t, err)
	assert.Equal(t, "42", gross.String())
	assert.Equal(t, "42", net.String())

	gross, net, err = s.Price(ctx, c.ID, civil.Date(2019, 6, 1), true, false)
	require.NoError(t, err)
	assert.Equal(t, "42", gross.String())
	assert.True(t, net.IsZero())
}

func TestService_CreateCareCodeRejectsCombination(t *testing.T) {
	s := newTestService()
	err := s.CreateCareCode(context.Background(), &CareCode{Code: "X", Name: "x", ContributionUndue: true})

	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "contribution_undue")
}

func TestService_AddOverlappingPeriodRejected(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	c := &CareCode{Code: "NF1", Name: "Soins", Reimbursed: true}
	require.NoError(t, s.CreateCareCode(ctx, c))
	require.NoError(t, s.AddValidityPeriod(ctx, &ValidityPeriod{
		CareCodeID: c.ID, Start: civil.Date(2019, 1, 1), End: datePtr(civil.Date(2019, 12, 31)), GrossAmount: dec("40"),
	}))

	err := s.AddValidityPeriod(ctx, &ValidityPeriod{
		CareCodeID: c.ID, Start: civil.Date(2019, 6, 1), GrossAmount: dec("41"),
	})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "start_date")

	require.NoError(t, s.AddValidityPeriod(ctx, &ValidityPeriod{
		CareCodeID: c.ID, Start: civil.Date(2020, 1, 1), GrossAmount: dec("41"),
	}))
}

func TestService_UpdatePeriodKeepsOwner(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	c := &CareCode{Code: "NF1", Name: "Soins", Reimbursed: true}
	require.NoError(t, s.CreateCareCode(ctx, c))
	p := &ValidityPeriod{CareCodeID: c.ID, Start: civil.Date(2019, 1, 1), GrossAmount: dec("40")}
	require.NoError(t, s.AddValidityPeriod(ctx, p))

	upd := &ValidityPeriod{ID: p.ID, Start: civil.Date(2019, 1, 1), GrossAmount: dec("45")}
	require.NoError(t, s.UpdateValidityPeriod(ctx, upd))
	assert.Equal(t, c.ID, upd.CareCodeID)

	got, err := s.GetCareCode(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "45", got.GrossAmount(civil.Date(2019, 3, 1)).String())
}

func TestService_CatalogReportsUnknown(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	c := &CareCode{Code: "NF1", Name: "Soins"}
	require.NoError(t, s.CreateCareCode(ctx, c))

	cat, err := s.Catalog(ctx, []uuid.UUID{c.ID, c.ID})
	require.NoError(t, err)
	assert.Len(t, cat, 1)

	_, err = s.Catalog(ctx, []uuid.UUID{c.ID, uuid.New()})
	assert.ErrorIs(t, err, db.ErrNotFound)
}
