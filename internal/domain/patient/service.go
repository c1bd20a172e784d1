package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/civil"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/validation"
)

// Attachment is a file uploaded with a prescription.
type Attachment struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

type Service struct {
	patients         PatientRepository
	hospitalizations HospitalizationRepository
	physicians       PhysicianRepository
	prescriptions    PrescriptionRepository
	blobs            blobstore.BlobStore
	tx               db.TxRunner
	loc              *time.Location
	logger           zerolog.Logger
	observer         validation.Observer
	now              func() time.Time
}

func NewService(patients PatientRepository, hosp HospitalizationRepository, phys PhysicianRepository,
	rx PrescriptionRepository, blobs blobstore.BlobStore, tx db.TxRunner, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		patients:         patients,
		hospitalizations: hosp,
		physicians:       phys,
		prescriptions:    rx,
		blobs:            blobs,
		tx:               tx,
		loc:              loc,
		logger:           logger,
		now:              time.Now,
	}
}

// SetObserver attaches an optional rejection observer.
func (s *Service) SetObserver(o validation.Observer) { s.observer = o }

func (s *Service) today() time.Time { return civil.Day(s.now(), s.loc) }

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CodeSN = NormalizeCodeSN(p.CodeSN)
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkPatient(ctx, p); err != nil {
			return err
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	p.CodeSN = NormalizeCodeSN(p.CodeSN)
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkPatient(ctx, p); err != nil {
			return err
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return nil
	})
}

func (s *Service) checkPatient(ctx context.Context, p *Patient) error {
	facts := PatientFacts{Today: s.today()}

	if !p.IsPrivate {
		taken, err := s.patients.CodeSNTaken(ctx, p.CodeSN, p.ID)
		if err != nil {
			return fmt.Errorf("check code_sn: %w", err)
		}
		facts.CodeSNTaken = taken
	}

	if p.DateOfDeath != nil {
		last, err := s.patients.LastPrestationAt(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("load last prestation: %w", err)
		}
		if last != nil {
			day := civil.Day(*last, s.loc)
			facts.LastPrestationDay = &day
		}

		stays, err := s.hospitalizations.ListByPatient(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("load hospitalizations: %w", err)
		}
		for i := range stays {
			if facts.LastHospitalizationEnd == nil || stays[i].End.After(*facts.LastHospitalizationEnd) {
				facts.LastHospitalizationEnd = &stays[i].End
			}
		}
	}

	return validation.Reject(s.observer, "patient", ValidatePatient(p, facts))
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// SearchPatients matches name or first name. private narrows the result to
// private or insured patients when set.
func (s *Service) SearchPatients(ctx context.Context, q string, private *bool, limit int) ([]*Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.patients.SearchByName(ctx, q, private, limit)
}

// -- Hospitalization --

func (s *Service) CreateHospitalization(ctx context.Context, h *Hospitalization) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkHospitalization(ctx, h); err != nil {
			return err
		}
		if err := s.hospitalizations.Create(ctx, h); err != nil {
			return fmt.Errorf("create hospitalization: %w", err)
		}
		return nil
	})
}

func (s *Service) UpdateHospitalization(ctx context.Context, h *Hospitalization) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkHospitalization(ctx, h); err != nil {
			return err
		}
		if err := s.hospitalizations.Update(ctx, h); err != nil {
			return fmt.Errorf("update hospitalization: %w", err)
		}
		return nil
	})
}

func (s *Service) checkHospitalization(ctx context.Context, h *Hospitalization) error {
	facts := HospitalizationFacts{}
	if h.PatientID != uuid.Nil {
		p, err := s.patients.GetByID(ctx, h.PatientID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("get patient: %w", err)
		}
		facts.Patient = p
	}
	if facts.Patient != nil {
		n, err := s.patients.CountPrestationsBetween(ctx, h.PatientID,
			civil.StartOf(h.Start, s.loc), civil.EndOf(h.End, s.loc))
		if err != nil {
			return fmt.Errorf("count prestations: %w", err)
		}
		facts.PrestationsInRange = n

		others, err := s.hospitalizations.ListByPatient(ctx, h.PatientID)
		if err != nil {
			return fmt.Errorf("load hospitalizations: %w", err)
		}
		facts.Others = others
	}
	return validation.Reject(s.observer, "hospitalization", ValidateHospitalization(*h, facts))
}

func (s *Service) DeleteHospitalization(ctx context.Context, id uuid.UUID) error {
	return s.hospitalizations.Delete(ctx, id)
}

func (s *Service) ListHospitalizations(ctx context.Context, patientID uuid.UUID) ([]Hospitalization, error) {
	return s.hospitalizations.ListByPatient(ctx, patientID)
}

// -- Physician --

func (s *Service) CreatePhysician(ctx context.Context, p *Physician) error {
	if err := validation.Reject(s.observer, "physician", ValidatePhysician(p)); err != nil {
		return err
	}
	return s.physicians.Create(ctx, p)
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return s.physicians.GetByID(ctx, id)
}

func (s *Service) UpdatePhysician(ctx context.Context, p *Physician) error {
	if err := validation.Reject(s.observer, "physician", ValidatePhysician(p)); err != nil {
		return err
	}
	return s.physicians.Update(ctx, p)
}

func (s *Service) DeletePhysician(ctx context.Context, id uuid.UUID) error {
	return s.physicians.Delete(ctx, id)
}

func (s *Service) ListPhysicians(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, limit, offset)
}

// -- MedicalPrescription --

// CreatePrescription stores rx and, when file is given, its scan. The scan is
// removed again if the record cannot be written.
func (s *Service) CreatePrescription(ctx context.Context, rx *MedicalPrescription, file *Attachment) error {
	if rx.ID == uuid.Nil {
		rx.ID = uuid.New()
	}
	return s.savePrescription(ctx, nil, rx, file, s.prescriptions.Create)
}

// UpdatePrescription rewrites rx. A new file replaces the previous scan,
// which is deleted once the update is committed.
func (s *Service) UpdatePrescription(ctx context.Context, rx *MedicalPrescription, file *Attachment) error {
	old, err := s.prescriptions.GetByID(ctx, rx.ID)
	if err != nil {
		return fmt.Errorf("get prescription: %w", err)
	}
	if file == nil && rx.FileID == "" {
		rx.FileID = old.FileID
	}
	return s.savePrescription(ctx, old, rx, file, s.prescriptions.Update)
}

func (s *Service) savePrescription(ctx context.Context, old, rx *MedicalPrescription, file *Attachment,
	write func(context.Context, *MedicalPrescription) error) error {
	if err := validation.Reject(s.observer, "medical_prescription", ValidatePrescription(rx)); err != nil {
		return err
	}

	var uploaded string
	if file != nil {
		meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Category:    blobstore.CategoryMedicalPrescription,
			OwnerID:     rx.ID.String(),
		}, file.Content)
		if err != nil {
			if errors.Is(err, blobstore.ErrFileTooLarge) {
				return validation.Reject(s.observer, "medical_prescription", validation.Errors{
					"file": fmt.Sprintf("Taille maximale du fichier est %d KO", blobstore.CategoryLimits[blobstore.CategoryMedicalPrescription]/1024),
				})
			}
			return fmt.Errorf("upload prescription file: %w", err)
		}
		uploaded = meta.ID
		rx.FileID = meta.ID
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, rx.PatientID); err != nil {
			return fmt.Errorf("get patient: %w", err)
		}
		return write(ctx, rx)
	})
	if err != nil {
		if uploaded != "" {
			s.removeBlob(ctx, uploaded)
		}
		return err
	}

	s.prescriptionFileHook(ctx, old, rx)
	return nil
}

// prescriptionFileHook runs after a prescription write is committed. It drops
// the scan that was replaced and refreshes the description of the current one.
func (s *Service) prescriptionFileHook(ctx context.Context, old, rx *MedicalPrescription) {
	if old != nil && old.FileID != "" && old.FileID != rx.FileID {
		s.removeBlob(ctx, old.FileID)
	}
	if rx == nil || rx.FileID == "" {
		return
	}
	p, err := s.patients.GetByID(ctx, rx.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("prescription_id", rx.ID.String()).Msg("prescription file description not updated")
		return
	}
	if err := s.blobs.UpdateDescription(ctx, rx.FileID, FileDescription(p, rx.Date)); err != nil {
		s.logger.Warn().Err(err).Str("blob_id", rx.FileID).Msg("prescription file description not updated")
	}
}

func (s *Service) removeBlob(ctx context.Context, id string) {
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("blob_id", id).Msg("failed to delete orphaned file")
	}
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*MedicalPrescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

// PrescriptionFile opens the scan attached to prescription id. The caller
// closes the returned reader.
func (s *Service) PrescriptionFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get prescription: %w", err)
	}
	if rx.FileID == "" {
		return nil, nil, fmt.Errorf("prescription %s has no file: %w", id, blobstore.ErrBlobNotFound)
	}
	rc, meta, err := s.blobs.Download(ctx, rx.FileID)
	if err != nil {
		return nil, nil, fmt.Errorf("open prescription file: %w", err)
	}
	return rc, meta, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID uuid.UUID) ([]*MedicalPrescription, error) {
	return s.prescriptions.ListByPatient(ctx, patientID)
}

// DeletePrescription removes rx and then its scan.
func (s *Service) DeletePrescription(ctx context.Context, id uuid.UUID) error {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get prescription: %w", err)
	}
	if err := s.prescriptions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if rx.FileID != "" {
		s.removeBlob(ctx, rx.FileID)
	}
	return nil
}
