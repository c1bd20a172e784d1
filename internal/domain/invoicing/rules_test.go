package invoicing

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/civil"
)

var (
	nf1    = &tariff.CareCode{ID: uuid.New(), Code: "NF1", Name: "Soins de base"}
	nf2    = &tariff.CareCode{ID: uuid.New(), Code: "NF2", Name: "Soins complexes"}
	atHome = &tariff.CareCode{ID: uuid.New(), Code: "NF01", Name: "Déplacement"}
	actAt  = time.Date(2019, 6, 1, 9, 0, 0, 0, time.UTC)
)

func baseDraft() PrestationDraft {
	emp := uuid.New()
	return PrestationDraft{
		InvoiceID:  uuid.New(),
		CareCode:   nf1,
		EmployeeID: &emp,
		Quantity:   1,
		Date:       actAt,
	}
}

func baseFacts() PrestationFacts {
	return PrestationFacts{
		Patient:        &patient.Patient{ID: uuid.New(), CodeSN: "1950010112345"},
		AtHomeCode:     "NF01",
		AtHomeCareCode: atHome,
		Codes: map[uuid.UUID]*tariff.CareCode{
			nf1.ID: nf1, nf2.ID: nf2, atHome.ID: atHome,
		},
		Location: time.UTC,
	}
}

// acts returns n acts on distinct days so they never conflict.
func acts(n int) []Prestation {
	out := make([]Prestation, n)
	for i := range out {
		out[i] = Prestation{ID: uuid.New(), CareCodeID: nf2.ID, Date: actAt.AddDate(0, 0, -(i + 1)), Quantity: 1}
	}
	return out
}

func TestValidatePrestation_Valid(t *testing.T) {
	assert.Empty(t, ValidatePrestation(baseDraft(), baseFacts()))
}

func TestValidatePrestation_MaxLimit(t *testing.T) {
	const msg = "Max number of Prestations for one InvoiceItem is 20"

	t.Run("19 existing accepts a 20th", func(t *testing.T) {
		f := baseFacts()
		f.Existing = acts(19)
		assert.Empty(t, ValidatePrestation(baseDraft(), f))
	})

	t.Run("20 existing rejects a 21st", func(t *testing.T) {
		f := baseFacts()
		f.Existing = acts(20)
		assert.Equal(t, msg, ValidatePrestation(baseDraft(), f)["date"])
	})

	t.Run("19 existing rejects an at-home act needing a companion", func(t *testing.T) {
		f := baseFacts()
		f.Existing = acts(19)
		d := baseDraft()
		d.AtHome = true
		assert.Equal(t, msg, ValidatePrestation(d, f)["date"])
	})

	t.Run("companion already present", func(t *testing.T) {
		f := baseFacts()
		f.Existing = append(acts(18), Prestation{ID: uuid.New(), CareCodeID: atHome.ID, Date: actAt})
		d := baseDraft()
		d.AtHome = true
		assert.Empty(t, ValidatePrestation(d, f))
	})

	t.Run("update of a full invoice", func(t *testing.T) {
		f := baseFacts()
		f.Existing = acts(20)
		d := baseDraft()
		d.ID = f.Existing[0].ID
		d.Date = f.Existing[0].Date
		d.CareCode = nf2
		assert.Empty(t, ValidatePrestation(d, f))
	})
}

func TestValidatePrestation_Hospitalization(t *testing.T) {
	f := baseFacts()
	f.Hospitalizations = []patient.Hospitalization{
		{Start: civil.Date(2019, 5, 25), End: civil.Date(2019, 6, 1)},
	}
	assert.Equal(t, "Patient has hospitalization records for the chosen date", ValidatePrestation(baseDraft(), f)["date"])

	f.Hospitalizations[0].End = civil.Date(2019, 5, 31)
	assert.Empty(t, ValidatePrestation(baseDraft(), f))
}

func TestValidatePrestation_HospitalizationUsesLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Luxembourg")
	require.NoError(t, err)
	f := baseFacts()
	f.Location = loc
	f.Hospitalizations = []patient.Hospitalization{
		{Start: civil.Date(2019, 6, 2), End: civil.Date(2019, 6, 3)},
	}
	d := baseDraft()
	// 22:30 UTC is already June 2nd in Luxembourg.
	d.Date = time.Date(2019, 6, 1, 22, 30, 0, 0, time.UTC)
	assert.Contains(t, ValidatePrestation(d, f), "date")
}

func TestValidatePrestation_AtHomeCodeMissing(t *testing.T) {
	f := baseFacts()
	f.AtHomeCareCode = nil
	d := baseDraft()
	d.AtHome = true
	assert.Equal(t, "CareCode NF01 does not exist. Please create a CareCode with the Code NF01",
		ValidatePrestation(d, f)["at_home"])
}

func TestValidatePrestation_CareCodeConflict(t *testing.T) {
	exclusive := &tariff.CareCode{ID: uuid.New(), Code: "NF3", ExclusiveWith: []uuid.UUID{nf1.ID}}
	f := baseFacts()
	f.Codes[exclusive.ID] = exclusive

	t.Run("same code same timestamp", func(t *testing.T) {
		f.Existing = []Prestation{{ID: uuid.New(), CareCodeID: nf1.ID, Date: actAt}}
		assert.Equal(t, "CareCode NF1 cannot be applied because CareCode(s) NF1 has been applied already",
			ValidatePrestation(baseDraft(), f)["carecode"])
	})

	t.Run("exclusive code declared on the other side", func(t *testing.T) {
		f.Existing = []Prestation{
			{ID: uuid.New(), CareCodeID: exclusive.ID, Date: actAt},
			{ID: uuid.New(), CareCodeID: nf1.ID, Date: actAt},
		}
		msg := ValidatePrestation(baseDraft(), f)["carecode"]
		assert.True(t, strings.HasSuffix(msg, "CareCode(s) NF3, NF1 has been applied already"), msg)
	})

	t.Run("different timestamp", func(t *testing.T) {
		f.Existing = []Prestation{{ID: uuid.New(), CareCodeID: nf1.ID, Date: actAt.Add(time.Minute)}}
		assert.Empty(t, ValidatePrestation(baseDraft(), f))
	})

	t.Run("self is ignored on update", func(t *testing.T) {
		id := uuid.New()
		f.Existing = []Prestation{{ID: id, CareCodeID: nf1.ID, Date: actAt}}
		d := baseDraft()
		d.ID = id
		assert.Empty(t, ValidatePrestation(d, f))
	})
}

func TestValidatePrestation_PatientDeath(t *testing.T) {
	f := baseFacts()
	death := civil.Date(2019, 6, 1)
	f.Patient.DateOfDeath = &death
	assert.Equal(t, "Prestation date cannot be later than or equal to Patient's death date",
		ValidatePrestation(baseDraft(), f)["date"])

	death = civil.Date(2019, 6, 2)
	assert.Empty(t, ValidatePrestation(baseDraft(), f))
}

func TestValidatePrestation_DeathWinsOverHospitalization(t *testing.T) {
	f := baseFacts()
	death := civil.Date(2019, 5, 1)
	f.Patient.DateOfDeath = &death
	f.Hospitalizations = []patient.Hospitalization{{Start: civil.Date(2019, 6, 1), End: civil.Date(2019, 6, 1)}}
	assert.Equal(t, "Prestation date cannot be later than or equal to Patient's death date",
		ValidatePrestation(baseDraft(), f)["date"])
}

func TestValidatePrestation_RequiredFields(t *testing.T) {
	d := baseDraft()
	d.EmployeeID = nil
	d.Quantity = 0
	errs := ValidatePrestation(d, baseFacts())
	assert.Equal(t, "Please fill Employee field", errs["employee"])
	assert.Contains(t, errs, "quantity")

	d = baseDraft()
	d.CareCode = nil
	assert.Equal(t, "Please fill CareCode field", ValidatePrestation(d, baseFacts())["carecode"])

	f := baseFacts()
	f.Patient = nil
	assert.Contains(t, ValidatePrestation(baseDraft(), f), "invoice_item")
}

func TestValidateInvoiceItem(t *testing.T) {
	pat := &patient.Patient{ID: uuid.New()}
	private := &patient.Patient{ID: uuid.New(), IsPrivate: true}

	inv := &InvoiceItem{Number: "1", PatientID: pat.ID}
	assert.Empty(t, ValidateInvoiceItem(inv, InvoiceFacts{Patient: pat}))

	inv.IsPrivate = true
	assert.Equal(t, "Only private Patients allowed in private Invoice Item.",
		ValidateInvoiceItem(inv, InvoiceFacts{Patient: pat})["patient"])

	inv = &InvoiceItem{Number: "1", PatientID: private.ID}
	assert.Contains(t, ValidateInvoiceItem(inv, InvoiceFacts{Patient: private}), "patient")

	rxID := uuid.New()
	inv = &InvoiceItem{Number: "1", PatientID: pat.ID, PrescriptionID: &rxID}
	rx := &patient.MedicalPrescription{ID: rxID, PatientID: uuid.New()}
	assert.Equal(t, "MedicalPrescription's Patient must be equal to InvoiceItem's Patient",
		ValidateInvoiceItem(inv, InvoiceFacts{Patient: pat, Prescription: rx})["medical_prescription"])

	rx.PatientID = pat.ID
	assert.Empty(t, ValidateInvoiceItem(inv, InvoiceFacts{Patient: pat, Prescription: rx}))

	assert.Equal(t, "Please fill Patient field", ValidateInvoiceItem(&InvoiceItem{Number: "1"}, InvoiceFacts{})["patient"])
}

func TestValidateBatch(t *testing.T) {
	b := &Batch{Start: civil.Date(2019, 6, 1), End: civil.Date(2019, 6, 30)}
	assert.Empty(t, ValidateBatch(b))
	b.End = civil.Date(2019, 5, 31)
	assert.Equal(t, "End date must be bigger than Start date", ValidateBatch(b)["end_date"])
}
