package tariff

import (
	"strings"

	"github.com/ehr/homecare/internal/platform/validation"
)

const msgEndBeforeStart = "End date must be bigger than Start date"

// ValidateCareCode checks a care code before it is written.
func ValidateCareCode(c *CareCode) validation.Errors {
	return validation.Collect(
		func() validation.Errors { return validateCode(c) },
		func() validation.Errors { return validateCombination(c) },
	)
}

func validateCode(c *CareCode) validation.Errors {
	errs := validation.Errors{}
	if strings.TrimSpace(c.Code) == "" {
		errs.Add("code", "Please fill Code field")
	}
	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "Please fill Name field")
	}
	for _, id := range c.ExclusiveWith {
		if id == c.ID {
			errs.Add("exclusive_care_codes", "A CareCode cannot exclude itself")
		}
	}
	return errs
}

// validateCombination rejects a contribution waiver on a code the insurer does
// not reimburse.
func validateCombination(c *CareCode) validation.Errors {
	if !c.Reimbursed && c.ContributionUndue {
		return validation.Errors{
			"contribution_undue": "Vous ne pouvez appliquer ce champ que pour les soins remboursés par la CNS",
		}
	}
	return nil
}

// ValidatePeriod checks a validity period against the other periods of its
// care code. The period itself is skipped when present in siblings.
func ValidatePeriod(p ValidityPeriod, siblings []ValidityPeriod) validation.Errors {
	return validation.Collect(
		func() validation.Errors { return validatePeriodDates(p) },
		func() validation.Errors { return validatePeriodOverlap(p, siblings) },
		func() validation.Errors {
			if p.GrossAmount.IsNegative() {
				return validation.Errors{"gross_amount": "Gross amount cannot be negative"}
			}
			return nil
		},
	)
}

func validatePeriodDates(p ValidityPeriod) validation.Errors {
	if p.End != nil && p.End.Before(p.Start) {
		return validation.Errors{"end_date": msgEndBeforeStart}
	}
	return nil
}

func validatePeriodOverlap(p ValidityPeriod, siblings []ValidityPeriod) validation.Errors {
	for _, s := range siblings {
		if s.ID == p.ID {
			continue
		}
		if p.Overlaps(s) {
			return validation.Errors{"start_date": "Validity dates intersect with another period of this CareCode"}
		}
	}
	return nil
}
