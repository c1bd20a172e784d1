package invoicing

import (
	"github.com/google/uuid"

	"github.com/ehr/homecare/internal/domain/tariff"
)

// Companion returns the home-visit act to generate for p, or nil when p is
// not an at-home act or its companion already exists. acts are the acts
// stored on p's invoice. The companion copies p with the at-home care code
// and points back to p.
func Companion(p *Prestation, atHome *tariff.CareCode, acts []Prestation) *Prestation {
	if p == nil || !p.AtHome || p.PairedWithID != nil || atHome == nil {
		return nil
	}
	for _, a := range acts {
		if a.PairedWithID != nil && *a.PairedWithID == p.ID {
			return nil
		}
	}
	if hasActWithCode(acts, atHome, p.Date) {
		return nil
	}

	pair := *p
	pair.ID = uuid.New()
	pair.CareCodeID = atHome.ID
	pair.AtHome = false
	original := p.ID
	pair.PairedWithID = &original
	return &pair
}
