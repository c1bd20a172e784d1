package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/homecare/internal/domain/invoicing"
	"github.com/ehr/homecare/internal/platform/civil"
)

func TestBuildRecap(t *testing.T) {
	r := BuildRecap([]RecapEntry{
		{InvoiceNumber: "101", PatientName: "DUPONT Jean", Amount: dec("126.00")},
		{InvoiceNumber: "102", PatientName: "MARTIN Anne", Amount: dec("10.10")},
		{InvoiceNumber: "103", PatientName: "MARTIN Anne", Amount: dec("0.20")},
	}, civil.Date(2019, 7, 1), "101-102-10")

	require.Len(t, r.Lines, 3)
	assert.Equal(t, 1, r.Lines[0].Position)
	assert.Equal(t, 3, r.Lines[2].Position)
	assert.Equal(t, "102", r.Lines[1].InvoiceNumber)
	assert.Equal(t, "136.30", r.Total.StringFixed(2))
	assert.Equal(t, "101-102-10", r.PaymentReference)
}

func TestBuildRecap_Empty(t *testing.T) {
	r := BuildRecap(nil, civil.Date(2019, 7, 1), "")
	assert.Empty(t, r.Lines)
	assert.True(t, r.Total.IsZero())
}

func TestPaymentReference(t *testing.T) {
	assert.Equal(t, "101-102-10", PaymentReference([]string{"103", "101", "102"}))
	assert.Equal(t, "7", PaymentReference([]string{"7"}))
	assert.Equal(t, "12A-12B", PaymentReference([]string{"12 B", "12 A"}))
	assert.Empty(t, PaymentReference(nil))
}

func TestParticipationReference(t *testing.T) {
	inv := &invoicing.InvoiceItem{Number: "927", Date: civil.Date(2019, 6, 30)}
	assert.Equal(t, "PI.927 30.06.2019", ParticipationReference(inv))
}

func TestParseBasis(t *testing.T) {
	b, err := ParseBasis("")
	require.NoError(t, err)
	assert.Equal(t, BasisGross, b)

	b, err = ParseBasis(" NET ")
	require.NoError(t, err)
	assert.Equal(t, BasisNet, b)

	_, err = ParseBasis("both")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	one := []*invoicing.InvoiceItem{{Number: "927", Date: civil.Date(2019, 6, 30)}}
	assert.Equal(t, "invoice-DUPONT-927-30-06-2019.pdf", FileName(one, "DUPONT", VariantInvoice))
	assert.Equal(t, "invoice-DUPONT-927-30-06-2019-part-personnelle.pdf", FileName(one, "DUPONT", VariantParticipation))

	many := []*invoicing.InvoiceItem{{Number: "928"}, {Number: "927 b"}}
	assert.Equal(t, "invoice927b-928.pdf", FileName(many, "DUPONT", VariantInvoice))

	long := make([]*invoicing.InvoiceItem, 40)
	for i := range long {
		long[i] = &invoicing.InvoiceItem{Number: "1000"}
	}
	name := FileName(long, "DUPONT", VariantInvoice)
	assert.Len(t, name, len("invoice")+multiFileNameMax+len(".pdf"))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("participation")
	require.NoError(t, err)
	assert.Equal(t, VariantParticipation, v)
	assert.Equal(t, "participation", v.String())

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantInvoice, v)

	_, err = ParseVariant("draft")
	assert.Error(t, err)
}
