package invoicing

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// PrestationLimitMax is the number of acts one invoice can hold.
const PrestationLimitMax = 20

// InvoiceItem is a "mémoire d'honoraires": the acts billed for one patient.
type InvoiceItem struct {
	ID                 uuid.UUID  `json:"id"`
	Number             string     `json:"invoice_number"`
	Date               time.Time  `json:"invoice_date"`
	PatientID          uuid.UUID  `json:"patient_id"`
	IsPrivate          bool       `json:"is_private"`
	AccidentID         *string    `json:"accident_id,omitempty"`
	AccidentDate       *time.Time `json:"accident_date,omitempty"`
	PatientInvoiceDate *time.Time `json:"patient_invoice_date,omitempty"`
	SendDate           *time.Time `json:"invoice_send_date,omitempty"`
	Sent               bool       `json:"invoice_sent"`
	Paid               bool       `json:"invoice_paid"`
	BatchID            *uuid.UUID `json:"batch_id,omitempty"`
	PrescriptionID     *uuid.UUID `json:"medical_prescription_id,omitempty"`
	IsValid            bool       `json:"is_valid"`
	ValidationComment  *string    `json:"validation_comment,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Month is the invoice date formatted for page numbers, e.g. "062019".
func (i *InvoiceItem) Month() string { return i.Date.Format("012006") }

// Prestation is one performed care act.
type Prestation struct {
	ID         uuid.UUID  `json:"id"`
	InvoiceID  uuid.UUID  `json:"invoice_item_id"`
	CareCodeID uuid.UUID  `json:"carecode_id"`
	EmployeeID *uuid.UUID `json:"employee_id,omitempty"`
	Quantity   int        `json:"quantity"`
	Date       time.Time  `json:"date"`
	AtHome     bool       `json:"at_home"`
	// PairedWithID points from an at-home companion to the act it was
	// generated for.
	PairedWithID *uuid.UUID `json:"at_home_paired_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Employee performs prestations.
type Employee struct {
	ID            uuid.UUID  `json:"id"`
	Abbreviation  string     `json:"abbreviation"`
	FirstName     string     `json:"first_name"`
	Name          string     `json:"name"`
	ProviderCode  string     `json:"provider_code,omitempty"`
	Email         string     `json:"email,omitempty"`
	StartContract time.Time  `json:"start_contract"`
	EndContract   *time.Time `json:"end_contract,omitempty"`
}

func (e *Employee) String() string {
	if e.Abbreviation != "" {
		return e.Abbreviation
	}
	return e.Name + " " + e.FirstName
}

// Batch groups the invoices sent to the insurer together.
type Batch struct {
	ID          uuid.UUID  `json:"id"`
	Start       time.Time  `json:"start_date"`
	End         time.Time  `json:"end_date"`
	SendDate    *time.Time `json:"send_date,omitempty"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	FileID      string     `json:"file_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (b *Batch) String() string {
	return "from " + b.Start.Format("2006-01-02") + " to " + b.End.Format("2006-01-02")
}

var numericInvoiceNumber = regexp.MustCompile(`^\d+$`)

// NextInvoiceNumber returns the largest purely numeric number plus one.
// Numbers with any other character are ignored.
func NextInvoiceNumber(numbers []string) int64 {
	var max int64
	for _, n := range numbers {
		if !numericInvoiceNumber.MatchString(n) {
			continue
		}
		v, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max + 1
}
