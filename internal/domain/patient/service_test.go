package patient

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/civil"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/validation"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	store       map[uuid.UUID]*Patient
	prestations map[uuid.UUID][]time.Time
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{store: make(map[uuid.UUID]*Patient), prestations: make(map[uuid.UUID][]time.Time)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	stored := *p
	m.store[p.ID] = &stored
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.store[p.ID]; !ok {
		return db.ErrNotFound
	}
	stored := *p
	m.store[p.ID] = &stored
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.store {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockPatientRepo) SearchByName(_ context.Context, q string, private *bool, limit int) ([]*Patient, error) {
	var out []*Patient
	for _, p := range m.store {
		if private != nil && p.IsPrivate != *private {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name+" "+p.FirstName), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPatientRepo) CodeSNTaken(_ context.Context, code string, excludeID uuid.UUID) (bool, error) {
	for _, p := range m.store {
		if p.ID != excludeID && !p.IsPrivate && p.CodeSN == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPatientRepo) LastPrestationAt(_ context.Context, patientID uuid.UUID) (*time.Time, error) {
	var last *time.Time
	for i, at := range m.prestations[patientID] {
		if last == nil || at.After(*last) {
			last = &m.prestations[patientID][i]
		}
	}
	return last, nil
}

func (m *mockPatientRepo) CountPrestationsBetween(_ context.Context, patientID uuid.UUID, from, to time.Time) (int, error) {
	n := 0
	for _, at := range m.prestations[patientID] {
		if !at.Before(from) && !at.After(to) {
			n++
		}
	}
	return n, nil
}

type mockHospitalizationRepo struct {
	store map[uuid.UUID]Hospitalization
}

func newMockHospitalizationRepo() *mockHospitalizationRepo {
	return &mockHospitalizationRepo{store: make(map[uuid.UUID]Hospitalization)}
}

func (m *mockHospitalizationRepo) Create(_ context.Context, h *Hospitalization) error {
	m.store[h.ID] = *h
	return nil
}

func (m *mockHospitalizationRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospitalization, error) {
	h, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &h, nil
}

func (m *mockHospitalizationRepo) Update(_ context.Context, h *Hospitalization) error {
	m.store[h.ID] = *h
	return nil
}

func (m *mockHospitalizationRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockHospitalizationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Hospitalization, error) {
	var out []Hospitalization
	for _, h := range m.store {
		if h.PatientID == patientID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockPhysicianRepo struct {
	store map[uuid.UUID]*Physician
}

func (m *mockPhysicianRepo) Create(_ context.Context, p *Physician) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.store[p.ID] = p
	return nil
}

func (m *mockPhysicianRepo) GetByID(_ context.Context, id uuid.UUID) (*Physician, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (m *mockPhysicianRepo) Update(_ context.Context, p *Physician) error {
	m.store[p.ID] = p
	return nil
}

func (m *mockPhysicianRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockPhysicianRepo) List(_ context.Context, limit, offset int) ([]*Physician, int, error) {
	var out []*Physician
	for _, p := range m.store {
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockPrescriptionRepo struct {
	store   map[uuid.UUID]*MedicalPrescription
	failing bool
}

func (m *mockPrescriptionRepo) Create(_ context.Context, rx *MedicalPrescription) error {
	if m.failing {
		return errors.New("write failed")
	}
	stored := *rx
	m.store[rx.ID] = &stored
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalPrescription, error) {
	rx, ok := m.store[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *rx
	return &out, nil
}

func (m *mockPrescriptionRepo) Update(_ context.Context, rx *MedicalPrescription) error {
	stored := *rx
	m.store[rx.ID] = &stored
	return nil
}

func (m *mockPrescriptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*MedicalPrescription, error) {
	var out []*MedicalPrescription
	for _, rx := range m.store {
		if rx.PatientID == patientID {
			out = append(out, rx)
		}
	}
	return out, nil
}

type fixture struct {
	svc      *Service
	patients *mockPatientRepo
	stays    *mockHospitalizationRepo
	rx       *mockPrescriptionRepo
	blobs    *blobstore.InMemoryBlobStore
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatientRepo(),
		stays:    newMockHospitalizationRepo(),
		rx:       &mockPrescriptionRepo{store: make(map[uuid.UUID]*MedicalPrescription)},
		blobs:    blobstore.NewInMemoryBlobStore(),
	}
	f.svc = NewService(f.patients, f.stays, &mockPhysicianRepo{store: make(map[uuid.UUID]*Physician)},
		f.rx, f.blobs, db.PassthroughRunner{}, time.UTC, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2020, 6, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) patient(t *testing.T) *Patient {
	t.Helper()
	p := &Patient{Name: "DUPONT", FirstName: "Jean", CodeSN: "1950 0101 12345"}
	require.NoError(t, f.svc.CreatePatient(context.Background(), p))
	return p
}

// -- Tests --

func TestService_CreatePatientNormalizesCode(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	assert.Equal(t, "1950010112345", p.CodeSN)
}

func TestService_DuplicateCodeSNRejected(t *testing.T) {
	f := newFixture()
	f.patient(t)

	err := f.svc.CreatePatient(context.Background(), &Patient{Name: "MARTIN", CodeSN: "1950010112345"})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Code SN must be unique", verrs["code_sn"])

	// a private patient may share the code
	require.NoError(t, f.svc.CreatePatient(context.Background(), &Patient{Name: "MARTIN", CodeSN: "1950010112345", IsPrivate: true}))
}

func TestService_DateOfDeathBeforeLastPrestation(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	f.patients.prestations[p.ID] = []time.Time{time.Date(2020, 3, 2, 9, 0, 0, 0, time.UTC)}

	death := civil.Date(2020, 3, 2)
	p.DateOfDeath = &death
	err := f.svc.UpdatePatient(context.Background(), p)
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "date_of_death")

	death = civil.Date(2020, 3, 3)
	require.NoError(t, f.svc.UpdatePatient(context.Background(), p))
}

func TestService_OverlappingHospitalizationRejected(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateHospitalization(ctx, &Hospitalization{
		PatientID: p.ID, Start: civil.Date(2020, 1, 1), End: civil.Date(2020, 1, 10),
	}))
	err := f.svc.CreateHospitalization(ctx, &Hospitalization{
		PatientID: p.ID, Start: civil.Date(2020, 1, 5), End: civil.Date(2020, 1, 15),
	})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Intersection with other Hospitalizations", verrs["start_date"])

	stays, err := f.svc.ListHospitalizations(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, stays, 1)
}

func TestService_HospitalizationCoversPrestation(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	f.patients.prestations[p.ID] = []time.Time{time.Date(2020, 1, 10, 23, 30, 0, 0, time.UTC)}

	err := f.svc.CreateHospitalization(context.Background(), &Hospitalization{
		PatientID: p.ID, Start: civil.Date(2020, 1, 1), End: civil.Date(2020, 1, 10),
	})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "start_date")
}

func TestService_PrescriptionFileReplacedAndCleaned(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	ctx := context.Background()

	rx := &MedicalPrescription{PatientID: p.ID, PhysicianID: uuid.New(), Date: civil.Date(2020, 2, 1)}
	require.NoError(t, f.svc.CreatePrescription(ctx, rx, &Attachment{
		FileName: "scan1.jpg", ContentType: "image/jpeg", Content: strings.NewReader("one"),
	}))
	first := rx.FileID
	require.NotEmpty(t, first)

	rc, meta, err := f.svc.PrescriptionFile(ctx, rx.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "one", string(content))
	assert.Equal(t, "DUPONT Jean 2020-02-01", meta.Description)

	require.NoError(t, f.svc.UpdatePrescription(ctx, rx, &Attachment{
		FileName: "scan2.jpg", ContentType: "image/jpeg", Content: strings.NewReader("two"),
	}))
	assert.NotEqual(t, first, rx.FileID)
	_, _, err = f.blobs.Download(ctx, first)
	assert.ErrorIs(t, err, blobstore.ErrBlobNotFound, "replaced scan is removed")
	assert.Equal(t, 1, f.blobs.Len())

	require.NoError(t, f.svc.DeletePrescription(ctx, rx.ID))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestService_PrescriptionUploadRolledBackOnWriteFailure(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	f.rx.failing = true

	err := f.svc.CreatePrescription(context.Background(),
		&MedicalPrescription{PatientID: p.ID, PhysicianID: uuid.New(), Date: civil.Date(2020, 2, 1)},
		&Attachment{FileName: "scan.pdf", ContentType: "application/pdf", Content: strings.NewReader("x")})
	require.Error(t, err)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestService_PrescriptionFileTooLarge(t *testing.T) {
	f := newFixture()
	p := f.patient(t)

	big := strings.Repeat("x", 1024*1024+1)
	err := f.svc.CreatePrescription(context.Background(),
		&MedicalPrescription{PatientID: p.ID, PhysicianID: uuid.New(), Date: civil.Date(2020, 2, 1)},
		&Attachment{FileName: "scan.jpg", ContentType: "image/jpeg", Content: strings.NewReader(big)})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Taille maximale du fichier est 1024 KO", verrs["file"])
}

func TestService_PrescriptionFileMissing(t *testing.T) {
	f := newFixture()
	p := f.patient(t)
	ctx := context.Background()

	_, _, err := f.svc.PrescriptionFile(ctx, uuid.New())
	assert.ErrorIs(t, err, db.ErrNotFound)

	rx := &MedicalPrescription{PatientID: p.ID, PhysicianID: uuid.New(), Date: civil.Date(2020, 2, 1)}
	require.NoError(t, f.svc.CreatePrescription(ctx, rx, nil))
	_, _, err = f.svc.PrescriptionFile(ctx, rx.ID)
	assert.ErrorIs(t, err, blobstore.ErrBlobNotFound)
}
