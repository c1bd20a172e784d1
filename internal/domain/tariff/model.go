package tariff

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ReimbursedShare is the part of the gross amount covered by the insurer.
	ReimbursedShare = decimal.NewFromInt(88).Div(decimal.NewFromInt(100))
	// ParticipationShare is the patient's statutory financial participation.
	ParticipationShare = decimal.NewFromInt(12).Div(decimal.NewFromInt(100))
)

// CareCode is a billable nursing act with its dated price list.
type CareCode struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	Code              string           `db:"code" json:"code"`
	Name              string           `db:"name" json:"name"`
	Description       string           `db:"description" json:"description"`
	Reimbursed        bool             `db:"reimbursed" json:"reimbursed"`
	ContributionUndue bool             `db:"contribution_undue" json:"contribution_undue"`
	ExclusiveWith     []uuid.UUID      `db:"-" json:"exclusive_with,omitempty"`
	Periods           []ValidityPeriod `db:"-" json:"validity_periods,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// ValidityPeriod prices a care code from Start to End inclusive. A nil End
// leaves the period open.
type ValidityPeriod struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	CareCodeID  uuid.UUID       `db:"care_code_id" json:"care_code_id"`
	Start       time.Time       `db:"start_date" json:"start_date"`
	End         *time.Time      `db:"end_date" json:"end_date,omitempty"`
	GrossAmount decimal.Decimal `db:"gross_amount" json:"gross_amount"`
}

// Contains reports whether day falls within the period.
func (p ValidityPeriod) Contains(day time.Time) bool {
	if day.Before(p.Start) {
		return false
	}
	return p.End == nil || !day.After(*p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p ValidityPeriod) Overlaps(o ValidityPeriod) bool {
	if p.End != nil && p.End.Before(o.Start) {
		return false
	}
	if o.End != nil && o.End.Before(p.Start) {
		return false
	}
	return true
}

// GrossAmount returns the price in force on day, or zero when no period
// covers it.
func (c *CareCode) GrossAmount(day time.Time) decimal.Decimal {
	for _, p := range c.Periods {
		if p.Contains(day) {
			return p.GrossAmount
		}
	}
	return decimal.Zero
}

// NetAmount returns the amount charged to the insurer for one act. Private
// patients pay the gross amount themselves, so the insurer owes nothing.
func (c *CareCode) NetAmount(day time.Time, privatePatient, participationStatutaire bool) decimal.Decimal {
	if privatePatient {
		return decimal.Zero
	}
	gross := c.GrossAmount(day)
	if c.Reimbursed && !c.ContributionUndue {
		return gross.Mul(ReimbursedShare).Round(2).Add(c.FinancialParticipation(day, participationStatutaire))
	}
	return gross
}

// FinancialParticipation is the patient's share of one act, waived when the
// statutory participation applies.
func (c *CareCode) FinancialParticipation(day time.Time, participationStatutaire bool) decimal.Decimal {
	if participationStatutaire {
		return decimal.Zero
	}
	return c.GrossAmount(day).Mul(ParticipationShare).Round(2)
}

// IsExclusiveWith reports whether other is declared mutually exclusive with c
// on either side.
func (c *CareCode) IsExclusiveWith(other *CareCode) bool {
	for _, id := range c.ExclusiveWith {
		if id == other.ID {
			return true
		}
	}
	for _, id := range other.ExclusiveWith {
		if id == c.ID {
			return true
		}
	}
	return false
}

func (c *CareCode) String() string {
	return c.Code + ":" + c.Name
}
