package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/homecare/internal/platform/validation"
)

const (
	msgEndBeforeStart = "End date must be bigger than Start date"
	msgFillPatient    = "Please fill Patient field"
	minPlausibleAge   = 1
	maxPlausibleAge   = 120
)

// PatientFacts is what the patient rules need to know about stored data.
type PatientFacts struct {
	// CodeSNTaken is set when another non-private patient has the same code.
	CodeSNTaken bool
	// LastPrestationDay is the day of the patient's latest billed act.
	LastPrestationDay *time.Time
	// LastHospitalizationEnd is the end of the patient's latest stay.
	LastHospitalizationEnd *time.Time
	Today                  time.Time
}

// ValidatePatient checks p before it is written. CodeSN must already be
// normalized.
func ValidatePatient(p *Patient, f PatientFacts) validation.Errors {
	return validation.Collect(
		func() validation.Errors { return validateCodeSNFormat(p) },
		func() validation.Errors { return validateCodeSNUnique(p, f) },
		func() validation.Errors { return validateDateOfDeath(p, f) },
		func() validation.Errors { return validateAge(p, f.Today) },
	)
}

func validateCodeSNFormat(p *Patient) validation.Errors {
	if !ValidCodeSN(p.CodeSN) {
		return validation.Errors{"code_sn": "Premier chiffre (1 à 2) suivi de 12 chiffres (0 à 9)"}
	}
	return nil
}

func validateCodeSNUnique(p *Patient, f PatientFacts) validation.Errors {
	if !p.IsPrivate && f.CodeSNTaken {
		return validation.Errors{"code_sn": "Code SN must be unique"}
	}
	return nil
}

func validateDateOfDeath(p *Patient, f PatientFacts) validation.Errors {
	if p.DateOfDeath == nil {
		return nil
	}
	errs := validation.Errors{}
	if f.LastPrestationDay != nil && !f.LastPrestationDay.Before(*p.DateOfDeath) {
		errs["date_of_death"] = "Prestation for a later date exists"
	}
	if f.LastHospitalizationEnd != nil && !f.LastHospitalizationEnd.Before(*p.DateOfDeath) {
		errs["date_of_death"] = "Hospitalization that ends later exists"
	}
	return errs
}

func validateAge(p *Patient, today time.Time) validation.Errors {
	if p.IsPrivate {
		return nil
	}
	age, ok := p.AgeAt(today)
	if !ok {
		return validation.Errors{"code_sn": "Code SN does not look ok, birth date cannot be read"}
	}
	if age < minPlausibleAge || age > maxPlausibleAge {
		return validation.Errors{"code_sn": fmt.Sprintf("Code SN does not look ok, patient cannot be %d year(s) old", age)}
	}
	return nil
}

// HospitalizationFacts is what the hospitalization rules need to know.
type HospitalizationFacts struct {
	Patient *Patient
	// PrestationsInRange counts the patient's acts from the first instant of
	// Start to the last instant of End.
	PrestationsInRange int
	// Others are the patient's stored stays. The stay being checked is
	// skipped when present.
	Others []Hospitalization
}

func ValidateHospitalization(h Hospitalization, f HospitalizationFacts) validation.Errors {
	if h.PatientID == uuid.Nil || f.Patient == nil {
		return validation.Errors{"patient": msgFillPatient}
	}
	return validation.Collect(
		func() validation.Errors {
			if h.End.Before(h.Start) {
				return validation.Errors{"end_date": msgEndBeforeStart}
			}
			return nil
		},
		func() validation.Errors {
			if f.PrestationsInRange > 0 {
				return validation.Errors{"start_date": "Prestation(s) exist in selected dates range for this Patient"}
			}
			return nil
		},
		func() validation.Errors { return validateStayOverlap(h, f.Others) },
		func() validation.Errors {
			death := f.Patient.DateOfDeath
			if death != nil && !h.End.Before(*death) {
				return validation.Errors{"end_date": "Hospitalization cannot be later than or include Patient's death date"}
			}
			return nil
		},
	)
}

func validateStayOverlap(h Hospitalization, others []Hospitalization) validation.Errors {
	for _, o := range others {
		if o.ID == h.ID || o.PatientID != h.PatientID {
			continue
		}
		if h.Overlaps(o) {
			return validation.Errors{"start_date": "Intersection with other Hospitalizations"}
		}
	}
	return nil
}

// ValidatePrescription checks the prescription period and its references.
func ValidatePrescription(rx *MedicalPrescription) validation.Errors {
	errs := validation.Errors{}
	if rx.PatientID == uuid.Nil {
		errs.Add("patient", msgFillPatient)
	}
	if rx.PhysicianID == uuid.Nil {
		errs.Add("prescriptor", "Please fill Physician field")
	}
	if rx.EndDate != nil && rx.EndDate.Before(rx.Date) {
		errs.Add("end_date", msgEndBeforeStart)
	}
	return errs
}

func ValidatePhysician(p *Physician) validation.Errors {
	errs := validation.Errors{}
	if p.ProviderCode == "" {
		errs.Add("provider_code", "Please fill Provider code field")
	}
	if p.Name == "" {
		errs.Add("name", "Please fill Name field")
	}
	return errs
}
