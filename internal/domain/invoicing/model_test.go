package invoicing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehr/homecare/internal/platform/civil"
)

func TestNextInvoiceNumber(t *testing.T) {
	tests := []struct {
		name    string
		numbers []string
		want    int64
	}{
		{"none", nil, 1},
		{"ignores non numeric", []string{"10", "058", "147", "259", "926", "936 some invoice_number"}, 927},
		{"leading zeros", []string{"0099", "98"}, 100},
		{"only text", []string{"A1", "1A", " 5"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextInvoiceNumber(tt.numbers))
		})
	}
}

func TestInvoiceItem_Month(t *testing.T) {
	inv := &InvoiceItem{Date: civil.Date(2019, 6, 30)}
	assert.Equal(t, "062019", inv.Month())
}

func TestEmployee_String(t *testing.T) {
	assert.Equal(t, "MD", (&Employee{Abbreviation: "MD", Name: "DOE"}).String())
	assert.Equal(t, "DOE Marie", (&Employee{Name: "DOE", FirstName: "Marie"}).String())
}
