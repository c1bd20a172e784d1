package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/tariff"
)

// InvoiceFilter narrows invoice listings. Zero fields match everything.
type InvoiceFilter struct {
	PatientID *uuid.UUID
	BatchID   *uuid.UUID
	From, To  *time.Time
	Limit     int
	Offset    int
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *InvoiceItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*InvoiceItem, error)
	Update(ctx context.Context, inv *InvoiceItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f InvoiceFilter) ([]*InvoiceItem, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*InvoiceItem, error)
	// NumericNumbers returns the invoice numbers made of digits only.
	NumericNumbers(ctx context.Context) ([]string, error)
	// AssignBatch attaches every unbatched invoice dated within [from, to]
	// to batchID and returns how many were attached.
	AssignBatch(ctx context.Context, batchID uuid.UUID, from, to time.Time) (int, error)
}

type PrestationRepository interface {
	Create(ctx context.Context, p *Prestation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prestation, error)
	Update(ctx context.Context, p *Prestation) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Prestation, error)
}

type EmployeeRepository interface {
	Create(ctx context.Context, e *Employee) error
	GetByID(ctx context.Context, id uuid.UUID) (*Employee, error)
	Update(ctx context.Context, e *Employee) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Employee, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Employee, error)
}

type BatchRepository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	Update(ctx context.Context, b *Batch) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Batch, int, error)
}

// CareCodeLookup is the part of the tariff store invoicing reads.
type CareCodeLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tariff.CareCode, error)
	GetByCode(ctx context.Context, code string) (*tariff.CareCode, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*tariff.CareCode, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type HospitalizationLookup interface {
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]patient.Hospitalization, error)
}

type PrescriptionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.MedicalPrescription, error)
}

// References are the stores of the entities invoices point to.
type References struct {
	CareCodes        CareCodeLookup
	Patients         PatientLookup
	Hospitalizations HospitalizationLookup
	Prescriptions    PrescriptionLookup
}
