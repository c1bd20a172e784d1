package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var codeSNPattern = regexp.MustCompile(`^[12]\d{12}`)

// Patient is a person receiving care. CodeSN is the national social security
// number; its first eight digits are the birth date (yyyymmdd).
type Patient struct {
	ID                      uuid.UUID  `db:"id" json:"id"`
	CodeSN                  string     `db:"code_sn" json:"code_sn"`
	FirstName               string     `db:"first_name" json:"first_name"`
	Name                    string     `db:"name" json:"name"`
	Address                 string     `db:"address" json:"address"`
	ZipCode                 string     `db:"zipcode" json:"zipcode"`
	City                    string     `db:"city" json:"city"`
	Country                 string     `db:"country" json:"country"`
	PhoneNumber             string     `db:"phone_number" json:"phone_number"`
	Email                   string     `db:"email" json:"email"`
	ParticipationStatutaire bool       `db:"participation_statutaire" json:"participation_statutaire"`
	IsPrivate               bool       `db:"is_private" json:"is_private"`
	DateOfDeath             *time.Time `db:"date_of_death" json:"date_of_death,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// NormalizeCodeSN strips the spaces users type between digit groups.
func NormalizeCodeSN(code string) string {
	return strings.ReplaceAll(code, " ", "")
}

// ValidCodeSN reports whether code has the statutory format.
func ValidCodeSN(code string) bool {
	return codeSNPattern.MatchString(NormalizeCodeSN(code))
}

// BirthDate extracts the birth date embedded in code. ok is false when the
// leading digits do not form a calendar date.
func BirthDate(code string) (time.Time, bool) {
	code = NormalizeCodeSN(code)
	if len(code) < 8 {
		return time.Time{}, false
	}
	born, err := time.Parse("20060102", code[:8])
	if err != nil {
		return time.Time{}, false
	}
	return born, true
}

// AgeAt returns the age in whole years on day computed from code.
func AgeAt(code string, day time.Time) (int, bool) {
	born, ok := BirthDate(code)
	if !ok {
		return 0, false
	}
	age := day.Year() - born.Year()
	if day.Month() < born.Month() || (day.Month() == born.Month() && day.Day() < born.Day()) {
		age--
	}
	return age, true
}

func (p *Patient) BirthDate() (time.Time, bool) { return BirthDate(p.CodeSN) }

func (p *Patient) AgeAt(day time.Time) (int, bool) { return AgeAt(p.CodeSN, day) }

// FullName is "NAME Firstname" as printed on invoices.
func (p *Patient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.Name) + " " + strings.TrimSpace(p.FirstName))
}

// StatutoryParticipation reports whether the statutory participation waiver
// applies to care given on day. It is granted to adults only.
func (p *Patient) StatutoryParticipation(day time.Time) bool {
	if !p.ParticipationStatutaire {
		return false
	}
	age, ok := p.AgeAt(day)
	return ok && age > 18
}

// Hospitalization is a stay during which no home care can be billed. Start
// and End are inclusive days.
type Hospitalization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Start       time.Time `db:"start_date" json:"start_date"`
	End         time.Time `db:"end_date" json:"end_date"`
	Description string    `db:"description" json:"description"`
}

// Overlaps reports whether the two stays share at least one day.
func (h Hospitalization) Overlaps(o Hospitalization) bool {
	return !h.End.Before(o.Start) && !o.End.Before(h.Start)
}

// Contains reports whether day falls within the stay.
func (h Hospitalization) Contains(day time.Time) bool {
	return !day.Before(h.Start) && !day.After(h.End)
}

// Physician prescribes care.
type Physician struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ProviderCode string    `db:"provider_code" json:"provider_code"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Name         string    `db:"name" json:"name"`
	Address      string    `db:"address" json:"address"`
	ZipCode      string    `db:"zipcode" json:"zipcode"`
	City         string    `db:"city" json:"city"`
	Country      string    `db:"country" json:"country"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	FaxNumber    string    `db:"fax_number" json:"fax_number"`
	Email        string    `db:"email" json:"email"`
}

func (p *Physician) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.Name) + " " + strings.TrimSpace(p.FirstName))
}

// MedicalPrescription authorizes care for a patient from Date until EndDate.
// FileID references the scanned document in the blob store.
type MedicalPrescription struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PhysicianID uuid.UUID  `db:"physician_id" json:"physician_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Date        time.Time  `db:"date" json:"date"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	FileID      string     `db:"file_id" json:"file_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// FileDescription labels the attached scan in the blob store.
func FileDescription(p *Patient, prescriptionDate time.Time) string {
	return strings.TrimSpace(p.Name) + " " + strings.TrimSpace(p.FirstName) + " " + prescriptionDate.Format("2006-01-02")
}
