// Package pdf renders statement documents as A4 PDF files.
package pdf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/ehr/homecare/internal/domain/statement"
)

const (
	margin     = 15.0
	lineHeight = 5.0
	rowHeight  = 5.5
	fontFamily = "Helvetica"
)

var (
	insurerColumns = []column{
		{"Num. titre", 14, "C"}, {"Prestation", 18, "L"}, {"Date", 22, "C"}, {"Heure", 14, "C"},
		{"Nombre", 14, "R"}, {"Brut", 22, "R"}, {"P. CNS", 22, "R"}, {"P. Pers", 22, "R"}, {"Executant", 32, "L"},
	}
	participationColumns = []column{
		{"Num. titre", 16, "C"}, {"Prestation", 24, "L"}, {"Date", 26, "C"}, {"Nombre", 18, "R"},
		{"Brut", 30, "R"}, {"CNS", 30, "R"}, {"Part. Client", 36, "R"},
	}
	recapColumns = []column{
		{"N d'ordre", 25, "C"}, {"Note no°", 45, "L"}, {"Nom et prénom", 75, "L"}, {"Montant", 35, "R"},
	}
)

type column struct {
	title string
	width float64
	align string
}

// Renderer lays out statement documents with gofpdf's core fonts.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

func (r *Renderer) Render(w io.Writer, doc *statement.Document) error {
	f := gofpdf.New("P", "mm", "A4", "")
	f.SetMargins(margin, margin, margin)
	f.SetAutoPageBreak(true, margin)
	f.SetTitle(doc.FileName, true)
	f.SetCreator(doc.Provider.Name, true)

	l := &layout{f: f, tr: f.UnicodeTranslatorFromDescriptor(""), doc: doc}
	for i := range doc.Pages {
		l.page(&doc.Pages[i])
	}
	l.recap()
	if err := f.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type layout struct {
	f   *gofpdf.Fpdf
	tr  func(string) string
	doc *statement.Document
}

func (l *layout) font(style string, size float64) { l.f.SetFont(fontFamily, style, size) }

// columns prints two blocks of text side by side and moves below the taller.
func (l *layout) columns(left, right string) {
	pageW, _ := l.f.GetPageSize()
	half := (pageW - 2*margin) / 2
	y := l.f.GetY()
	l.f.SetXY(margin, y)
	l.f.MultiCell(half, lineHeight, l.tr(left), "", "L", false)
	leftEnd := l.f.GetY()
	l.f.SetXY(margin+half, y)
	l.f.MultiCell(half, lineHeight, l.tr(right), "", "L", false)
	l.f.SetY(max(leftEnd, l.f.GetY()))
	l.f.Ln(2)
}

func (l *layout) header(p *statement.Page) {
	prov := l.doc.Provider
	pat := p.Patient
	inv := p.Invoice

	l.font("", 9)
	l.columns(
		"IDENTIFICATION DU FOURNISSEUR DE SOINS DE SANTE\n"+strings.Join([]string{prov.Name, prov.Address, prov.ZipCity, prov.Phone}, "\n"),
		"CODE DU FOURNISSEUR DE SOINS DE SANTE\n"+prov.Code,
	)
	l.columns(
		fmt.Sprintf("Matricule patient: %s\nNom et Prénom du patient: %s", pat.CodeSN, pat.FullName()),
		fmt.Sprintf("Nom: %s\nPrénom: %s\nRue: %s\nCode postal: %s\nVille: %s",
			pat.Name, pat.FirstName, pat.Address, pat.ZipCode, pat.City),
	)
	l.columns(fmt.Sprintf("Date accident: %s\nNum. accident: %s", dateOrEmpty(inv.AccidentDate), strOrEmpty(inv.AccidentID)), "")

	title := fmt.Sprintf("Mémoire d'Honoraires Num. %s en date du : %s", p.Number, inv.Date.Format("02-01-2006"))
	if p.PrescriptionDate != nil {
		title += fmt.Sprintf(" Ordonnance du %s ", p.PrescriptionDate.Format("02-01-2006"))
	}
	l.font("B", 10)
	l.f.MultiCell(0, 6, l.tr(title), "", "C", false)
	l.f.Ln(2)
}

func (l *layout) table(cols []column, rows [][]string) {
	l.font("B", 8)
	l.f.SetFillColor(230, 230, 230)
	for _, c := range cols {
		l.f.CellFormat(c.width, rowHeight, l.tr(c.title), "1", 0, "C", true, 0, "")
	}
	l.f.Ln(-1)
	l.font("", 8)
	for _, row := range rows {
		for i, c := range cols {
			l.f.CellFormat(c.width, rowHeight, l.tr(row[i]), "1", 0, c.align, false, 0, "")
		}
		l.f.Ln(-1)
	}
}

func (l *layout) page(p *statement.Page) {
	l.f.AddPage()
	l.header(p)

	cols := insurerColumns
	if l.doc.Variant == statement.VariantParticipation {
		cols = participationColumns
	}
	rows := make([][]string, len(p.Lines))
	for i, line := range p.Lines {
		rows[i] = Cells(l.doc.Variant, line)
	}
	l.table(cols, rows)
	l.f.Ln(4)

	if l.doc.Variant == statement.VariantParticipation {
		l.font("B", 10)
		l.f.CellFormat(90, 7, l.tr("Total participation personnelle:"), "", 0, "L", false, 0, "")
		l.f.CellFormat(40, 7, money(p.Total.Participation)+" Euros", "", 1, "R", false, 0, "")
		if p.Invoice.PatientInvoiceDate != nil {
			l.font("", 9)
			l.f.CellFormat(0, 7, l.tr("Date envoi de la présente facture: "+FrenchDate(*p.Invoice.PatientInvoiceDate)), "", 1, "L", false, 0, "")
		}
		return
	}
	l.font("B", 9)
	l.f.CellFormat(60, 12, "Paiement Direct", "1", 0, "C", false, 0, "")
	l.f.CellFormat(10, 12, "", "", 0, "C", false, 0, "")
	l.f.CellFormat(60, 12, "Tiers payant", "1", 1, "C", false, 0, "")
}

func (l *layout) recap() {
	r := l.doc.Recap
	l.f.AddPage()
	l.font("", 10)
	l.f.MultiCell(0, 6, l.tr("Veuillez trouver ci-joint le récapitulatif des factures ainsi que le montant total à payer"), "", "L", false)
	l.f.Ln(4)

	rows := make([][]string, 0, len(r.Lines)+1)
	for _, line := range r.Lines {
		rows = append(rows, []string{strconv.Itoa(line.Position), line.InvoiceNumber, line.PatientName, money(line.Amount)})
	}
	rows = append(rows, []string{"", "", "à reporter", money(r.Total)})
	l.table(recapColumns, rows)
	l.f.Ln(6)

	l.font("", 10)
	l.f.CellFormat(0, 6, "Date facture : "+r.Date.Format("02-01-2006"), "", 1, "L", false, 0, "")
	l.f.CellFormat(0, 6, l.tr("Lors du virement, veuillez indiquer la référence: "+r.PaymentReference), "", 1, "L", false, 0, "")
	l.font("B", 11)
	l.f.CellFormat(60, 8, l.tr("Total à payer:"), "", 0, "L", false, 0, "")
	l.f.CellFormat(50, 8, money(r.Total)+" Euros", "", 1, "R", false, 0, "")
	l.font("", 10)
	for _, line := range IBANLines(l.doc.Provider) {
		l.f.CellFormat(0, 6, l.tr(line), "", 1, "L", false, 0, "")
	}
}
