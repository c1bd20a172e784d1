package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/civil"
	"github.com/ehr/homecare/internal/platform/validation"
)

const (
	msgFillPatient    = "Please fill Patient field"
	msgEndBeforeStart = "End date must be bigger than Start date"
)

// PrestationDraft is a prestation about to be written, with its care code
// resolved. ID is uuid.Nil for a new act.
type PrestationDraft struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	CareCode   *tariff.CareCode
	EmployeeID *uuid.UUID
	Quantity   int
	Date       time.Time
	AtHome     bool
}

// PrestationFacts is the stored state the prestation rules read.
type PrestationFacts struct {
	// Patient is the patient of the owning invoice.
	Patient          *patient.Patient
	Hospitalizations []patient.Hospitalization
	// AtHomeCode is the configured code of the home-visit surcharge and
	// AtHomeCareCode the care code carrying it, nil when none exists.
	AtHomeCode     string
	AtHomeCareCode *tariff.CareCode
	// Existing holds every act stored on the invoice, the draft included
	// when it is an update.
	Existing []Prestation
	// Codes resolves the care codes of Existing.
	Codes    map[uuid.UUID]*tariff.CareCode
	Location *time.Location
}

// ValidatePrestation runs every prestation rule. Later rules win when two
// rules report the same field.
func ValidatePrestation(d PrestationDraft, f PrestationFacts) validation.Errors {
	if d.CareCode == nil {
		return validation.Errors{"carecode": "Please fill CareCode field"}
	}
	if d.InvoiceID == uuid.Nil || f.Patient == nil {
		return validation.Errors{"invoice_item": "Please fill InvoiceItem field"}
	}
	day := civil.Day(d.Date, f.Location)

	return validation.Collect(
		func() validation.Errors { return validateNotHospitalized(day, f.Hospitalizations) },
		func() validation.Errors { return validateAtHomeConfig(d, f) },
		func() validation.Errors { return validateCareCodeConflict(d, f) },
		func() validation.Errors { return validatePatientAlive(day, f.Patient) },
		func() validation.Errors { return validateMaxLimit(d, f) },
		func() validation.Errors { return validateEmployee(d) },
		func() validation.Errors {
			if d.Quantity < 1 {
				return validation.Errors{"quantity": "Quantity must be at least 1"}
			}
			return nil
		},
	)
}

func validateNotHospitalized(day time.Time, stays []patient.Hospitalization) validation.Errors {
	for _, h := range stays {
		if h.Contains(day) {
			return validation.Errors{"date": "Patient has hospitalization records for the chosen date"}
		}
	}
	return nil
}

func validateAtHomeConfig(d PrestationDraft, f PrestationFacts) validation.Errors {
	if d.AtHome && f.AtHomeCareCode == nil {
		return validation.Errors{"at_home": fmt.Sprintf(
			"CareCode %s does not exist. Please create a CareCode with the Code %s", f.AtHomeCode, f.AtHomeCode)}
	}
	return nil
}

func validateCareCodeConflict(d PrestationDraft, f PrestationFacts) validation.Errors {
	var conflicting []string
	for _, p := range f.Existing {
		if p.ID == d.ID || !p.Date.Equal(d.Date) {
			continue
		}
		other, ok := f.Codes[p.CareCodeID]
		if p.CareCodeID == d.CareCode.ID || (ok && d.CareCode.IsExclusiveWith(other)) {
			name := p.CareCodeID.String()
			if ok {
				name = other.Code
			}
			conflicting = append(conflicting, name)
		}
	}
	if len(conflicting) == 0 {
		return nil
	}
	return validation.Errors{"carecode": fmt.Sprintf(
		"CareCode %s cannot be applied because CareCode(s) %s has been applied already",
		d.CareCode.Code, strings.Join(conflicting, ", "))}
}

func validatePatientAlive(day time.Time, p *patient.Patient) validation.Errors {
	if p.DateOfDeath != nil && !day.Before(*p.DateOfDeath) {
		return validation.Errors{"date": "Prestation date cannot be later than or equal to Patient's death date"}
	}
	return nil
}

// validateMaxLimit counts the acts the invoice would hold after the write,
// including the at-home companion the write would generate.
func validateMaxLimit(d PrestationDraft, f PrestationFacts) validation.Errors {
	expected := len(f.Existing)
	addsNew := false
	if d.AtHome && !hasActWithCode(f.Existing, f.AtHomeCareCode, d.Date) {
		expected++
		addsNew = true
	}
	if d.ID == uuid.Nil {
		expected++
		addsNew = true
	}
	if addsNew && expected > PrestationLimitMax {
		return validation.Errors{"date": fmt.Sprintf("Max number of Prestations for one InvoiceItem is %d", PrestationLimitMax)}
	}
	return nil
}

func validateEmployee(d PrestationDraft) validation.Errors {
	if d.EmployeeID == nil || *d.EmployeeID == uuid.Nil {
		return validation.Errors{"employee": "Please fill Employee field"}
	}
	return nil
}

func hasActWithCode(acts []Prestation, code *tariff.CareCode, at time.Time) bool {
	if code == nil {
		return false
	}
	for _, p := range acts {
		if p.CareCodeID == code.ID && p.Date.Equal(at) {
			return true
		}
	}
	return false
}

// InvoiceFacts is the stored state the invoice rules read.
type InvoiceFacts struct {
	Patient      *patient.Patient
	Prescription *patient.MedicalPrescription
}

// ValidateInvoiceItem checks the private flag against the patient and the
// attached prescription against the patient.
func ValidateInvoiceItem(inv *InvoiceItem, f InvoiceFacts) validation.Errors {
	if inv.PatientID == uuid.Nil || f.Patient == nil {
		return validation.Errors{"patient": msgFillPatient}
	}
	return validation.Collect(
		func() validation.Errors {
			switch {
			case inv.IsPrivate && !f.Patient.IsPrivate:
				return validation.Errors{"patient": "Only private Patients allowed in private Invoice Item."}
			case !inv.IsPrivate && f.Patient.IsPrivate:
				return validation.Errors{"patient": "Private Patients only allowed in private Invoice Item."}
			}
			return nil
		},
		func() validation.Errors {
			if inv.PrescriptionID != nil && f.Prescription != nil && f.Prescription.PatientID != inv.PatientID {
				return validation.Errors{"medical_prescription": "MedicalPrescription's Patient must be equal to InvoiceItem's Patient"}
			}
			return nil
		},
		func() validation.Errors {
			if strings.TrimSpace(inv.Number) == "" {
				return validation.Errors{"invoice_number": "Please fill Invoice number field"}
			}
			return nil
		},
	)
}

func ValidateBatch(b *Batch) validation.Errors {
	if b.End.Before(b.Start) {
		return validation.Errors{"end_date": msgEndBeforeStart}
	}
	return nil
}
