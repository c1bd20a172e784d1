package statement

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/homecare/internal/domain/invoicing"
	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/civil"
)

const (
	// RowsPerPage is the number of data rows printed on one page.
	RowsPerPage = invoicing.PrestationLimitMax
	// SubtotalEvery is the number of data rows summed by each subtotal row.
	SubtotalEvery = 10
	// DisplayRows counts the data rows of a page and their subtotal rows.
	DisplayRows = RowsPerPage + RowsPerPage/SubtotalEvery
)

var (
	ErrNoPrestations   = errors.New("invoice has no prestations")
	ErrUnknownCareCode = errors.New("unknown care code")
	ErrNoInvoices      = errors.New("no invoices selected")
)

// Amounts are the summed columns of one or more rows.
type Amounts struct {
	Quantity      int
	Gross         decimal.Decimal
	Net           decimal.Decimal
	Participation decimal.Decimal
}

func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		Quantity:      a.Quantity + b.Quantity,
		Gross:         a.Gross.Add(b.Gross),
		Net:           a.Net.Add(b.Net),
		Participation: a.Participation.Add(b.Participation),
	}
}

type LineKind int

const (
	LineAct LineKind = iota
	LineBlank
	LineSubtotal
	LineTotal
)

// Line is one row of the page table. Position is the 1-based data row and
// is zero on subtotal and total rows.
type Line struct {
	Kind     LineKind
	Position int
	Code     string
	Date     string
	Time     string
	Employee string
	Amounts
}

// Page is one printed invoice page. A long invoice spans several pages,
// each with its own number.
type Page struct {
	Number           string
	Invoice          *invoicing.InvoiceItem
	Patient          *patient.Patient
	PrescriptionDate *time.Time
	// Lines holds the DisplayRows body rows followed by the total row.
	Lines []Line
	Total Amounts
}

// Amount is the page total recapped for basis.
func (p *Page) Amount(basis Basis) decimal.Decimal {
	switch basis {
	case BasisNet:
		return p.Total.Net
	case BasisParticipation:
		return p.Total.Participation
	default:
		return p.Total.Gross
	}
}

// InvoiceData is everything needed to lay out one invoice.
type InvoiceData struct {
	Invoice          *invoicing.InvoiceItem
	Patient          *patient.Patient
	Prestations      []invoicing.Prestation
	CareCodes        map[uuid.UUID]*tariff.CareCode
	Employees        map[uuid.UUID]*invoicing.Employee
	PrescriptionDate *time.Time
}

type act struct {
	p    invoicing.Prestation
	code *tariff.CareCode
}

// Compose lays out an invoice as pages of RowsPerPage acts sorted by date
// then care code name. Dates and times print in loc.
func Compose(in InvoiceData, loc *time.Location) ([]Page, error) {
	if len(in.Prestations) == 0 {
		return nil, fmt.Errorf("invoice %s: %w", in.Invoice.Number, ErrNoPrestations)
	}
	acts := make([]act, 0, len(in.Prestations))
	for _, p := range in.Prestations {
		code, ok := in.CareCodes[p.CareCodeID]
		if !ok {
			return nil, fmt.Errorf("prestation %s: care code %s: %w", p.ID, p.CareCodeID, ErrUnknownCareCode)
		}
		acts = append(acts, act{p: p, code: code})
	}
	sort.SliceStable(acts, func(i, j int) bool {
		if !acts[i].p.Date.Equal(acts[j].p.Date) {
			return acts[i].p.Date.Before(acts[j].p.Date)
		}
		return acts[i].code.Name < acts[j].code.Name
	})

	var chunks [][]act
	for start := 0; start < len(acts); start += RowsPerPage {
		end := min(start+RowsPerPage, len(acts))
		chunks = append(chunks, acts[start:end])
	}

	pages := make([]Page, 0, len(chunks))
	for idx, chunk := range chunks {
		number := in.Invoice.Number
		if len(chunks) > 1 {
			number = fmt.Sprintf("%s%d%s", in.Invoice.Number, idx+1, in.Invoice.Month())
		}
		rows := make([]Line, len(chunk))
		for i, a := range chunk {
			rows[i] = actLine(i+1, a, in, loc)
		}
		lines, total := pageLines(rows)
		pages = append(pages, Page{
			Number:           number,
			Invoice:          in.Invoice,
			Patient:          in.Patient,
			PrescriptionDate: in.PrescriptionDate,
			Lines:            lines,
			Total:            total,
		})
	}
	return pages, nil
}

func actLine(pos int, a act, in InvoiceData, loc *time.Location) Line {
	day := civil.Day(a.p.Date, loc)
	local := a.p.Date.In(loc)
	qty := decimal.NewFromInt(int64(a.p.Quantity))
	grossUnit := a.code.GrossAmount(day)
	netUnit := a.code.NetAmount(day, in.Patient.IsPrivate, in.Patient.StatutoryParticipation(day))

	var employee string
	if a.p.EmployeeID != nil {
		if e, ok := in.Employees[*a.p.EmployeeID]; ok {
			employee = e.String()
		}
	}
	return Line{
		Kind:     LineAct,
		Position: pos,
		Code:     a.code.Code,
		Date:     local.Format("02/01/2006"),
		Time:     local.Format("15:04"),
		Employee: employee,
		Amounts: Amounts{
			Quantity:      a.p.Quantity,
			Gross:         grossUnit.Mul(qty).Round(2),
			Net:           netUnit.Mul(qty).Round(2),
			Participation: grossUnit.Sub(netUnit).Mul(qty).Round(2),
		},
	}
}

// pageLines pads rows to RowsPerPage, inserts a subtotal after every
// SubtotalEvery rows and closes the page with the total row.
func pageLines(rows []Line) ([]Line, Amounts) {
	lines := make([]Line, 0, DisplayRows+1)
	var sub, total Amounts
	for i := 0; i < RowsPerPage; i++ {
		l := Line{Kind: LineBlank, Position: i + 1}
		if i < len(rows) {
			l = rows[i]
		}
		lines = append(lines, l)
		sub = sub.Add(l.Amounts)
		if (i+1)%SubtotalEvery == 0 {
			lines = append(lines, Line{Kind: LineSubtotal, Amounts: sub})
			total = total.Add(sub)
			sub = Amounts{}
		}
	}
	lines = append(lines, Line{Kind: LineTotal, Amounts: total})
	return lines, total
}

// RecapEntries lists one recap entry per page, valued on basis.
func RecapEntries(pages []Page, basis Basis) []RecapEntry {
	out := make([]RecapEntry, len(pages))
	for i := range pages {
		out[i] = RecapEntry{
			InvoiceNumber: pages[i].Number,
			PatientName:   pages[i].Patient.FullName(),
			Amount:        pages[i].Amount(basis),
		}
	}
	return out
}
