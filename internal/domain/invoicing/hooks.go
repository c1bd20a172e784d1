package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/calendar"
)

// Change is one prestation write. Old is nil on create and New is nil on
// delete.
type Change struct {
	Old *Prestation
	New *Prestation
}

// TxHook runs inside the write transaction right after a prestation write.
// It returns the derived writes it made so that they reach the commit hooks
// too. An error rolls the whole write back.
type TxHook func(ctx context.Context, c Change) ([]Change, error)

// CommitHook runs after the transaction committed, once per write. It cannot
// fail the write and logs its own errors.
type CommitHook func(ctx context.Context, c Change)

// OnPrestationWrite registers a hook run inside prestation write
// transactions.
func (s *Service) OnPrestationWrite(h TxHook) { s.txHooks = append(s.txHooks, h) }

// AfterPrestationCommit registers a hook run after prestation writes commit.
func (s *Service) AfterPrestationCommit(h CommitHook) {
	s.commitHooks = append(s.commitHooks, h)
}

// pairAtHome creates the at-home companion of c.New when one is needed.
func (s *Service) pairAtHome(ctx context.Context, c Change) ([]Change, error) {
	if c.New == nil || !c.New.AtHome {
		return nil, nil
	}
	atHome, err := s.atHomeCareCode(ctx)
	if err != nil {
		return nil, err
	}
	acts, err := s.prestations.ListByInvoice(ctx, c.New.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("list prestations: %w", err)
	}
	pair := Companion(c.New, atHome, acts)
	if pair == nil {
		return nil, nil
	}
	if err := s.prestations.Create(ctx, pair); err != nil {
		return nil, fmt.Errorf("create at-home companion: %w", err)
	}
	if s.observer != nil {
		s.observer.IncrementPairedAct()
	}
	s.logger.Debug().Str("prestation_id", c.New.ID.String()).Str("companion_id", pair.ID.String()).Msg("at-home companion created")
	return []Change{{New: pair}}, nil
}

// eventDuration is the length of the calendar slot booked for one act.
const eventDuration = time.Hour

// CalendarHook mirrors committed prestation writes into syncer.
func (s *Service) CalendarHook(syncer calendar.Syncer) CommitHook {
	return func(ctx context.Context, c Change) {
		if c.New == nil {
			if c.Old == nil {
				return
			}
			if err := syncer.DeleteEvent(ctx, c.Old.ID.String()); err != nil {
				s.logger.Warn().Err(err).Str("prestation_id", c.Old.ID.String()).Msg("calendar delete not sent")
			}
			return
		}
		ev, err := s.calendarEvent(ctx, c.New)
		if err != nil {
			s.logger.Warn().Err(err).Str("prestation_id", c.New.ID.String()).Msg("calendar event not built")
			return
		}
		if err := syncer.UpsertEvent(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("prestation_id", c.New.ID.String()).Msg("calendar upsert not sent")
		}
	}
}

func (s *Service) calendarEvent(ctx context.Context, p *Prestation) (calendar.Event, error) {
	code, err := s.refs.CareCodes.GetByID(ctx, p.CareCodeID)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("get care code: %w", err)
	}
	inv, err := s.invoices.GetByID(ctx, p.InvoiceID)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("get invoice: %w", err)
	}
	pat, err := s.refs.Patients.GetByID(ctx, inv.PatientID)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("get patient: %w", err)
	}

	ev := calendar.Event{
		ID:          p.ID.String(),
		Title:       code.Code + " - " + pat.FullName(),
		Description: fmt.Sprintf("%s\n%s %s\n%s", code.Name, pat.Address, pat.City, inv.Number),
		Start:       p.Date,
		End:         p.Date.Add(eventDuration),
	}
	if p.EmployeeID != nil {
		ev.EmployeeID = p.EmployeeID.String()
	}
	return ev, nil
}

// batchFileHook runs after a batch write committed and drops the file that
// was replaced or whose batch was deleted.
func (s *Service) batchFileHook(ctx context.Context, old, b *Batch) {
	if old == nil || old.FileID == "" {
		return
	}
	if b != nil && b.FileID == old.FileID {
		return
	}
	if err := s.blobs.Delete(ctx, old.FileID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("blob_id", old.FileID).Msg("failed to delete batch file")
	}
}
