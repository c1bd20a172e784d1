package statement

import (
	"fmt"
	"io"
	"strings"

	"github.com/ehr/homecare/internal/domain/invoicing"
)

// Variant selects the kind of document produced for a set of invoices.
type Variant int

const (
	// VariantInvoice is the memorandum of fees sent to the insurer.
	VariantInvoice Variant = iota
	// VariantParticipation bills the patient's personal participation.
	VariantParticipation
)

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "invoice":
		return VariantInvoice, nil
	case "participation":
		return VariantParticipation, nil
	}
	return 0, fmt.Errorf("unknown document variant %q", s)
}

func (v Variant) String() string {
	if v == VariantParticipation {
		return "participation"
	}
	return "invoice"
}

// Provider identifies the care provider on every page.
type Provider struct {
	Name          string
	Address       string
	ZipCity       string
	Phone         string
	Code          string
	MainIBAN      string
	AlternateIBAN string
}

// Document is a composed set of invoice pages closed by a recap.
type Document struct {
	Variant  Variant
	Provider Provider
	FileName string
	Pages    []Page
	Recap    Recap
}

// Renderer writes a document in its output format.
type Renderer interface {
	Render(w io.Writer, doc *Document) error
}

const multiFileNameMax = 150

// FileName names the document built from invoices. patientName is the
// patient of the first invoice.
func FileName(invoices []*invoicing.InvoiceItem, patientName string, variant Variant) string {
	if len(invoices) == 1 {
		inv := invoices[0]
		name := fmt.Sprintf("invoice-%s-%s-%s", patientName, inv.Number, inv.Date.Format("02-01-2006"))
		if variant == VariantParticipation {
			name += "-part-personnelle"
		}
		return name + ".pdf"
	}
	numbers := make([]string, len(invoices))
	for i, inv := range invoices {
		numbers[i] = inv.Number
	}
	return "invoice" + joinNumbers(numbers, multiFileNameMax) + ".pdf"
}

// BatchFileName names the document generated for a batch.
func BatchFileName(b *invoicing.Batch) string {
	return fmt.Sprintf("batch-%s-%s.pdf", b.Start.Format("02-01-2006"), b.End.Format("02-01-2006"))
}
