package statement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/homecare/internal/domain/invoicing"
)

// Basis selects which page total the recap adds up.
type Basis string

const (
	BasisGross         Basis = "gross"
	BasisNet           Basis = "net"
	BasisParticipation Basis = "participation"
)

func ParseBasis(s string) (Basis, error) {
	switch b := Basis(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BasisGross, nil
	case BasisGross, BasisNet, BasisParticipation:
		return b, nil
	}
	return "", fmt.Errorf("unknown recap basis %q", s)
}

type RecapEntry struct {
	InvoiceNumber string
	PatientName   string
	Amount        decimal.Decimal
}

type RecapLine struct {
	Position int
	RecapEntry
}

// Recap is the closing summary of a document: one numbered line per page
// and the amount to transfer.
type Recap struct {
	Date             time.Time
	PaymentReference string
	Lines            []RecapLine
	Total            decimal.Decimal
}

func BuildRecap(entries []RecapEntry, date time.Time, paymentRef string) Recap {
	r := Recap{
		Date:             date,
		PaymentReference: paymentRef,
		Lines:            make([]RecapLine, len(entries)),
		Total:            decimal.Zero,
	}
	for i, e := range entries {
		r.Lines[i] = RecapLine{Position: i + 1, RecapEntry: e}
		r.Total = r.Total.Add(e.Amount)
	}
	return r
}

const paymentRefMax = 10

// PaymentReference is the transfer reference for a set of invoices: their
// sorted numbers joined by dashes, spaces dropped, cut to ten characters.
func PaymentReference(numbers []string) string {
	return joinNumbers(numbers, paymentRefMax)
}

// ParticipationReference is the transfer reference asked from a patient
// paying their personal participation.
func ParticipationReference(inv *invoicing.InvoiceItem) string {
	return fmt.Sprintf("PI.%s %s", inv.Number, inv.Date.Format("02.01.2006"))
}

func joinNumbers(numbers []string, limit int) string {
	sorted := append([]string(nil), numbers...)
	sort.Strings(sorted)
	s := strings.ReplaceAll(strings.Join(sorted, "-"), " ", "")
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
