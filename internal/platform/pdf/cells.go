package pdf

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/homecare/internal/domain/statement"
)

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FrenchDate formats t as "02 juillet 2019".
func FrenchDate(t time.Time) string {
	return fmt.Sprintf("%02d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// Cells returns the printed cells of a table line for variant.
func Cells(variant statement.Variant, l statement.Line) []string {
	var pos, label, qty string
	gross, net, part := money(l.Gross), money(l.Net), money(l.Participation)
	switch l.Kind {
	case statement.LineAct:
		pos, label, qty = strconv.Itoa(l.Position), l.Code, strconv.Itoa(l.Quantity)
	case statement.LineBlank:
		pos, gross, net, part = strconv.Itoa(l.Position), "", "", ""
	case statement.LineSubtotal:
		label, qty = "Sous-Total", strconv.Itoa(l.Quantity)
	case statement.LineTotal:
		label, qty = "Total", strconv.Itoa(l.Quantity)
	}
	if variant == statement.VariantParticipation {
		return []string{pos, label, l.Date, qty, gross, net, part}
	}
	return []string{pos, label, l.Date, l.Time, qty, gross, net, part, l.Employee}
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02-01-2006")
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IBANLines are the bank account lines of the recap footer. The alternate
// account is printed only when configured.
func IBANLines(p statement.Provider) []string {
	lines := []string{"Numéro IBAN: " + p.MainIBAN}
	if p.AlternateIBAN != "" {
		lines = append(lines, "Autre numéro IBAN: "+p.AlternateIBAN)
	}
	return lines
}
