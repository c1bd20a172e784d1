package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ehr/homecare/internal/platform/civil"
)

var today = civil.Date(2020, 6, 1)

func day(y int, m time.Month, d int) *time.Time {
	t := civil.Date(y, m, d)
	return &t
}

func TestValidatePatient_Valid(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "1980031512345"}
	assert.True(t, ValidatePatient(p, PatientFacts{Today: today}).Empty())
}

func TestValidatePatient_Format(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "3980031512345", IsPrivate: true}
	errs := ValidatePatient(p, PatientFacts{Today: today})
	assert.Equal(t, "Premier chiffre (1 à 2) suivi de 12 chiffres (0 à 9)", errs["code_sn"])
}

func TestValidatePatient_UniqueAmongInsured(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "1980031512345"}
	errs := ValidatePatient(p, PatientFacts{Today: today, CodeSNTaken: true})
	assert.Equal(t, "Code SN must be unique", errs["code_sn"])

	p.IsPrivate = true
	assert.True(t, ValidatePatient(p, PatientFacts{Today: today, CodeSNTaken: true}).Empty())
}

func TestValidatePatient_ImplausibleAge(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "1880031512345"}
	errs := ValidatePatient(p, PatientFacts{Today: today})
	assert.Equal(t, "Code SN does not look ok, patient cannot be 140 year(s) old", errs["code_sn"])

	// born this year
	p.CodeSN = "2020010112345"
	assert.Contains(t, ValidatePatient(p, PatientFacts{Today: today}), "code_sn")

	p.IsPrivate = true
	assert.True(t, ValidatePatient(p, PatientFacts{Today: today}).Empty())
}

func TestValidatePatient_UnreadableBirthDate(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "1980133112345"}
	errs := ValidatePatient(p, PatientFacts{Today: today})
	assert.Equal(t, "Code SN does not look ok, birth date cannot be read", errs["code_sn"])
}

func TestValidatePatient_DateOfDeath(t *testing.T) {
	p := &Patient{ID: uuid.New(), CodeSN: "1940031512345", DateOfDeath: day(2020, 5, 10)}

	errs := ValidatePatient(p, PatientFacts{Today: today, LastPrestationDay: day(2020, 5, 10)})
	assert.Equal(t, "Prestation for a later date exists", errs["date_of_death"])

	errs = ValidatePatient(p, PatientFacts{Today: today, LastHospitalizationEnd: day(2020, 5, 12)})
	assert.Equal(t, "Hospitalization that ends later exists", errs["date_of_death"])

	assert.True(t, ValidatePatient(p, PatientFacts{Today: today, LastPrestationDay: day(2020, 5, 9)}).Empty())
}

func TestValidateHospitalization_OverlapRejected(t *testing.T) {
	pid := uuid.New()
	patient := &Patient{ID: pid}
	first := Hospitalization{ID: uuid.New(), PatientID: pid, Start: civil.Date(2020, 1, 1), End: civil.Date(2020, 1, 10)}
	second := Hospitalization{ID: uuid.New(), PatientID: pid, Start: civil.Date(2020, 1, 5), End: civil.Date(2020, 1, 15)}

	errs := ValidateHospitalization(second, HospitalizationFacts{Patient: patient, Others: []Hospitalization{first}})
	assert.Equal(t, "Intersection with other Hospitalizations", errs["start_date"])
}

func TestValidateHospitalization_UpdateExcludesSelf(t *testing.T) {
	pid := uuid.New()
	h := Hospitalization{ID: uuid.New(), PatientID: pid, Start: civil.Date(2020, 1, 1), End: civil.Date(2020, 1, 10)}
	moved := h
	moved.End = civil.Date(2020, 1, 12)

	assert.True(t, ValidateHospitalization(moved, HospitalizationFacts{Patient: &Patient{ID: pid}, Others: []Hospitalization{h}}).Empty())
}

func TestValidateHospitalization_Rules(t *testing.T) {
	pid := uuid.New()
	h := Hospitalization{ID: uuid.New(), PatientID: pid, Start: civil.Date(2020, 1, 10), End: civil.Date(2020, 1, 1)}
	errs := ValidateHospitalization(h, HospitalizationFacts{Patient: &Patient{ID: pid}})
	assert.Equal(t, msgEndBeforeStart, errs["end_date"])

	h = Hospitalization{ID: uuid.New(), PatientID: pid, Start: civil.Date(2020, 1, 1), End: civil.Date(2020, 1, 10)}
	errs = ValidateHospitalization(h, HospitalizationFacts{Patient: &Patient{ID: pid}, PrestationsInRange: 2})
	assert.Equal(t, "Prestation(s) exist in selected dates range for this Patient", errs["start_date"])

	dead := &Patient{ID: pid, DateOfDeath: day(2020, 1, 10)}
	errs = ValidateHospitalization(h, HospitalizationFacts{Patient: dead})
	assert.Equal(t, "Hospitalization cannot be later than or include Patient's death date", errs["end_date"])

	errs = ValidateHospitalization(Hospitalization{}, HospitalizationFacts{})
	assert.Equal(t, msgFillPatient, errs["patient"])
}

func TestValidatePrescription(t *testing.T) {
	rx := &MedicalPrescription{
		PatientID: uuid.New(), PhysicianID: uuid.New(),
		Date: civil.Date(2020, 2, 1), EndDate: day(2020, 1, 1),
	}
	assert.Equal(t, msgEndBeforeStart, ValidatePrescription(rx)["end_date"])

	rx.EndDate = nil
	assert.True(t, ValidatePrescription(rx).Empty())

	assert.Len(t, ValidatePrescription(&MedicalPrescription{}), 2)
}
