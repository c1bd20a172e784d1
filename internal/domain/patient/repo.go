package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	SearchByName(ctx context.Context, q string, private *bool, limit int) ([]*Patient, error)
	// CodeSNTaken reports whether a non-private patient other than excludeID
	// has code.
	CodeSNTaken(ctx context.Context, code string, excludeID uuid.UUID) (bool, error)
	// LastPrestationAt returns the instant of the patient's latest act.
	LastPrestationAt(ctx context.Context, patientID uuid.UUID) (*time.Time, error)
	// CountPrestationsBetween counts the patient's acts in [from, to].
	CountPrestationsBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) (int, error)
}

type HospitalizationRepository interface {
	Create(ctx context.Context, h *Hospitalization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospitalization, error)
	Update(ctx context.Context, h *Hospitalization) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Hospitalization, error)
}

type PhysicianRepository interface {
	Create(ctx context.Context, p *Physician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Physician, error)
	Update(ctx context.Context, p *Physician) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Physician, int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, rx *MedicalPrescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalPrescription, error)
	Update(ctx context.Context, rx *MedicalPrescription) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalPrescription, error)
}
