package tariff

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/homecare/internal/platform/civil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func datePtr(t time.Time) *time.Time { return &t }

func nf1() *CareCode {
	return &CareCode{
		ID:         uuid.New(),
		Code:       "NF1",
		Name:       "Soins infirmiers",
		Reimbursed: true,
		Periods: []ValidityPeriod{
			{ID: uuid.New(), Start: civil.Date(2019, 5, 1), GrossAmount: dec("42.00")},
		},
	}
}

func TestGrossAmount_OpenPeriod(t *testing.T) {
	c := nf1()
	assert.True(t, dec("42.00").Equal(c.GrossAmount(civil.Date(2019, 6, 1))))
	assert.True(t, dec("42.00").Equal(c.GrossAmount(civil.Date(2019, 5, 1))), "start day is inclusive")
	assert.True(t, c.GrossAmount(civil.Date(2019, 4, 30)).IsZero(), "no price before the first period")
}

func TestGrossAmount_ClosedPeriods(t *testing.T) {
	c := &CareCode{Periods: []ValidityPeriod{
		{Start: civil.Date(2018, 1, 1), End: datePtr(civil.Date(2018, 12, 31)), GrossAmount: dec("40.10")},
		{Start: civil.Date(2019, 1, 1), GrossAmount: dec("41.50")},
	}}
	assert.True(t, dec("40.10").Equal(c.GrossAmount(civil.Date(2018, 12, 31))), "end day is inclusive")
	assert.True(t, dec("41.50").Equal(c.GrossAmount(civil.Date(2019, 1, 1))))
	assert.True(t, c.GrossAmount(civil.Date(2017, 12, 31)).IsZero())
}

func TestNetAmount_NonStatutory(t *testing.T) {
	c := nf1()
	day := civil.Date(2019, 6, 1)
	// 36.96 + 5.04
	assert.Equal(t, "42", c.NetAmount(day, false, false).String())
	assert.Equal(t, "5.04", c.FinancialParticipation(day, false).String())
}

func TestNetAmount_Statutory(t *testing.T) {
	c := nf1()
	day := civil.Date(2019, 6, 1)
	assert.Equal(t, "36.96", c.NetAmount(day, false, true).String())
	assert.True(t, c.FinancialParticipation(day, true).IsZero())
}

func TestNetAmount_PrivatePatient(t *testing.T) {
	c := nf1()
	day := civil.Date(2019, 6, 1)
	assert.True(t, c.NetAmount(day, true, false).IsZero())
	assert.True(t, c.NetAmount(day, true, true).IsZero())
	assert.True(t, dec("42.00").Equal(c.GrossAmount(day)))
}

func TestNetAmount_NotReimbursedOrWaived(t *testing.T) {
	day := civil.Date(2019, 6, 1)

	c := nf1()
	c.Reimbursed = false
	assert.True(t, dec("42.00").Equal(c.NetAmount(day, false, false)))

	c = nf1()
	c.ContributionUndue = true
	assert.True(t, dec("42.00").Equal(c.NetAmount(day, false, false)))
}

func TestNetAmount_RoundsHalfUp(t *testing.T) {
	// 10.125 * 0.88 = 8.91 exactly; 10.125 * 0.12 = 1.215 -> 1.22
	c := &CareCode{Reimbursed: true, Periods: []ValidityPeriod{{Start: civil.Date(2020, 1, 1), GrossAmount: dec("10.125")}}}
	day := civil.Date(2020, 2, 1)
	assert.Equal(t, "1.22", c.FinancialParticipation(day, false).String())
	assert.Equal(t, "10.13", c.NetAmount(day, false, false).String())
}

func TestValidityPeriod_Overlaps(t *testing.T) {
	a := ValidityPeriod{Start: civil.Date(2020, 1, 1), End: datePtr(civil.Date(2020, 1, 10))}
	b := ValidityPeriod{Start: civil.Date(2020, 1, 10), End: datePtr(civil.Date(2020, 1, 20))}
	c := ValidityPeriod{Start: civil.Date(2020, 1, 11)}
	open := ValidityPeriod{Start: civil.Date(2019, 1, 1)}

	assert.True(t, a.Overlaps(b), "shared boundary day")
	assert.False(t, a.Overlaps(c))
	assert.True(t, b.Overlaps(c))
	assert.True(t, open.Overlaps(c))
	assert.True(t, open.Overlaps(a))
}

func TestIsExclusiveWith_Symmetric(t *testing.T) {
	a := &CareCode{ID: uuid.New()}
	b := &CareCode{ID: uuid.New(), ExclusiveWith: []uuid.UUID{a.ID}}
	other := &CareCode{ID: uuid.New()}

	assert.True(t, a.IsExclusiveWith(b))
	assert.True(t, b.IsExclusiveWith(a))
	assert.False(t, a.IsExclusiveWith(other))
}

func TestCareCodeJSONFieldNames(t *testing.T) {
	c := CareCode{Code: "NF1", Reimbursed: true, Periods: []ValidityPeriod{{Start: civil.Date(2019, 1, 1), GrossAmount: dec("10.5")}}}
	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "NF1", got["code"])
	assert.Equal(t, true, got["reimbursed"])
	assert.NotContains(t, got, "exclusive_with")

	periods, ok := got["validity_periods"].([]any)
	require.True(t, ok)
	require.Len(t, periods, 1)
	period := periods[0].(map[string]any)
	assert.Equal(t, "10.5", period["gross_amount"])
	assert.NotContains(t, period, "end_date")
}
