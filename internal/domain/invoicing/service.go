package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/validation"
)

// Config holds the named parameters invoicing reads.
type Config struct {
	// AtHomeCode is the care code of the home-visit surcharge.
	AtHomeCode string
	Location   *time.Location
}

// Observer is told about rejected writes and generated companions.
type Observer interface {
	validation.Observer
	IncrementPairedAct()
}

type Service struct {
	invoices    InvoiceRepository
	prestations PrestationRepository
	employees   EmployeeRepository
	batches     BatchRepository
	refs        References
	blobs       blobstore.BlobStore
	tx          db.TxRunner
	cfg         Config
	logger      zerolog.Logger
	observer    Observer

	txHooks       []TxHook
	commitHooks   []CommitHook
	numberRetries int
}

// NewService wires the invoicing store. The at-home pairing hook is always
// registered.
func NewService(invoices InvoiceRepository, prestations PrestationRepository, employees EmployeeRepository,
	batches BatchRepository, refs References, blobs blobstore.BlobStore, tx db.TxRunner, cfg Config,
	logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{
		invoices:      invoices,
		prestations:   prestations,
		employees:     employees,
		batches:       batches,
		refs:          refs,
		blobs:         blobs,
		tx:            tx,
		cfg:           cfg,
		logger:        logger.With().Str("component", "invoicing").Logger(),
		numberRetries: 3,
	}
	s.OnPrestationWrite(s.pairAtHome)
	return s
}

func (s *Service) SetObserver(o Observer) { s.observer = o }

func (s *Service) reject(entity string, errs validation.Errors) error {
	var o validation.Observer
	if s.observer != nil {
		o = s.observer
	}
	return validation.Reject(o, entity, errs)
}

func (s *Service) atHomeCareCode(ctx context.Context) (*tariff.CareCode, error) {
	c, err := s.refs.CareCodes.GetByCode(ctx, s.cfg.AtHomeCode)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get at-home care code %s: %w", s.cfg.AtHomeCode, err)
	}
	return c, nil
}

// -- InvoiceItem --

// NextNumber returns the default number of the next invoice.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	numbers, err := s.invoices.NumericNumbers(ctx)
	if err != nil {
		return "", fmt.Errorf("load invoice numbers: %w", err)
	}
	return strconv.FormatInt(NextInvoiceNumber(numbers), 10), nil
}

// CreateInvoice stores inv. An empty number is replaced by the next free
// one, retrying when a concurrent writer took it first.
func (s *Service) CreateInvoice(ctx context.Context, inv *InvoiceItem) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	auto := strings.TrimSpace(inv.Number) == ""

	for attempt := 0; ; attempt++ {
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			if auto {
				n, err := s.NextNumber(ctx)
				if err != nil {
					return err
				}
				inv.Number = n
			}
			if err := s.checkInvoice(ctx, inv); err != nil {
				return err
			}
			if err := s.invoices.Create(ctx, inv); err != nil {
				return fmt.Errorf("create invoice %s: %w", inv.Number, err)
			}
			return nil
		})
		if auto && errors.Is(err, db.ErrConflict) && attempt < s.numberRetries {
			s.logger.Warn().Str("invoice_number", inv.Number).Int("attempt", attempt+1).Msg("invoice number taken, retrying")
			continue
		}
		return err
	}
}

func (s *Service) UpdateInvoice(ctx context.Context, inv *InvoiceItem) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkInvoice(ctx, inv); err != nil {
			return err
		}
		if err := s.invoices.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice %s: %w", inv.Number, err)
		}
		return nil
	})
}

func (s *Service) checkInvoice(ctx context.Context, inv *InvoiceItem) error {
	var facts InvoiceFacts
	if inv.PatientID != uuid.Nil {
		p, err := s.refs.Patients.GetByID(ctx, inv.PatientID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("get patient: %w", err)
		}
		facts.Patient = p
	}
	if inv.PrescriptionID != nil {
		rx, err := s.refs.Prescriptions.GetByID(ctx, *inv.PrescriptionID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("get prescription: %w", err)
		}
		facts.Prescription = rx
	}
	return s.reject("invoice_item", ValidateInvoiceItem(inv, facts))
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceItem, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter) ([]*InvoiceItem, int, error) {
	return s.invoices.List(ctx, f)
}

// InvoicesByIDs returns the invoices ordered by number. Unknown ids are an
// error.
func (s *Service) InvoicesByIDs(ctx context.Context, ids []uuid.UUID) ([]*InvoiceItem, error) {
	items, err := s.invoices.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	found := make(map[uuid.UUID]bool, len(items))
	for _, i := range items {
		found[i.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("invoice %s: %w", id, db.ErrNotFound)
		}
	}
	return items, nil
}

// DeleteInvoice removes inv with its prestations.
func (s *Service) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	var removed []Prestation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		acts, err := s.prestations.ListByInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("list prestations: %w", err)
		}
		removed = acts
		return s.invoices.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	for i := range removed {
		s.afterCommit(ctx, []Change{{Old: &removed[i]}})
	}
	return nil
}

// -- Prestation --

func (s *Service) CreatePrestation(ctx context.Context, p *Prestation) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	return s.savePrestation(ctx, true, p, s.prestations.Create)
}

func (s *Service) UpdatePrestation(ctx context.Context, p *Prestation) error {
	return s.savePrestation(ctx, false, p, s.prestations.Update)
}

// savePrestation validates and writes p in one transaction. The stored row
// an update replaces is read inside that transaction.
func (s *Service) savePrestation(ctx context.Context, isNew bool, p *Prestation,
	write func(context.Context, *Prestation) error) error {
	var changes []Change
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		changes = nil
		var old *Prestation
		if !isNew {
			var err error
			if old, err = s.prestations.GetByID(ctx, p.ID); err != nil {
				return fmt.Errorf("get prestation: %w", err)
			}
		}
		draft, facts, err := s.prestationFacts(ctx, isNew, p)
		if err != nil {
			return err
		}
		if err := s.reject("prestation", ValidatePrestation(draft, facts)); err != nil {
			return err
		}
		if err := write(ctx, p); err != nil {
			return fmt.Errorf("write prestation: %w", err)
		}
		changes, err = s.runTxHooks(ctx, Change{Old: old, New: p})
		return err
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, changes)
	return nil
}

// DeletePrestation removes p and the at-home companion generated for it.
func (s *Service) DeletePrestation(ctx context.Context, id uuid.UUID) error {
	var changes []Change
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		changes = nil
		p, err := s.prestations.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get prestation: %w", err)
		}
		acts, err := s.prestations.ListByInvoice(ctx, p.InvoiceID)
		if err != nil {
			return fmt.Errorf("list prestations: %w", err)
		}
		for i := range acts {
			if acts[i].PairedWithID != nil && *acts[i].PairedWithID == id {
				if err := s.prestations.Delete(ctx, acts[i].ID); err != nil {
					return fmt.Errorf("delete companion: %w", err)
				}
				changes = append(changes, Change{Old: &acts[i]})
			}
		}
		if err := s.prestations.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete prestation: %w", err)
		}
		more, err := s.runTxHooks(ctx, Change{Old: p})
		changes = append(changes, more...)
		return err
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, changes)
	return nil
}

// runTxHooks returns c followed by the derived writes of every hook.
func (s *Service) runTxHooks(ctx context.Context, c Change) ([]Change, error) {
	changes := []Change{c}
	for _, h := range s.txHooks {
		derived, err := h(ctx, c)
		if err != nil {
			return nil, err
		}
		changes = append(changes, derived...)
	}
	return changes, nil
}

func (s *Service) afterCommit(ctx context.Context, changes []Change) {
	for _, c := range changes {
		for _, h := range s.commitHooks {
			h(ctx, c)
		}
	}
}

// prestationFacts resolves the draft of p and loads the state its rules
// need.
func (s *Service) prestationFacts(ctx context.Context, isNew bool, p *Prestation) (PrestationDraft, PrestationFacts, error) {
	draft := PrestationDraft{
		ID:         p.ID,
		InvoiceID:  p.InvoiceID,
		EmployeeID: p.EmployeeID,
		Quantity:   p.Quantity,
		Date:       p.Date,
		AtHome:     p.AtHome,
	}
	if isNew {
		draft.ID = uuid.Nil
	}
	facts := PrestationFacts{AtHomeCode: s.cfg.AtHomeCode, Location: s.cfg.Location}

	code, err := s.refs.CareCodes.GetByID(ctx, p.CareCodeID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return draft, facts, fmt.Errorf("get care code: %w", err)
	}
	draft.CareCode = code

	inv, err := s.invoices.GetByID(ctx, p.InvoiceID)
	if errors.Is(err, db.ErrNotFound) {
		return draft, facts, nil
	}
	if err != nil {
		return draft, facts, fmt.Errorf("get invoice: %w", err)
	}
	pat, err := s.refs.Patients.GetByID(ctx, inv.PatientID)
	if err != nil {
		return draft, facts, fmt.Errorf("get patient: %w", err)
	}
	facts.Patient = pat

	if facts.Hospitalizations, err = s.refs.Hospitalizations.ListByPatient(ctx, pat.ID); err != nil {
		return draft, facts, fmt.Errorf("load hospitalizations: %w", err)
	}
	if facts.AtHomeCareCode, err = s.atHomeCareCode(ctx); err != nil {
		return draft, facts, err
	}
	if facts.Existing, err = s.prestations.ListByInvoice(ctx, p.InvoiceID); err != nil {
		return draft, facts, fmt.Errorf("list prestations: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(facts.Existing))
	for _, e := range facts.Existing {
		ids = append(ids, e.CareCodeID)
	}
	codes, err := s.refs.CareCodes.ListByIDs(ctx, ids)
	if err != nil {
		return draft, facts, fmt.Errorf("load care codes: %w", err)
	}
	facts.Codes = make(map[uuid.UUID]*tariff.CareCode, len(codes))
	for _, c := range codes {
		facts.Codes[c.ID] = c
	}
	return draft, facts, nil
}

func (s *Service) GetPrestation(ctx context.Context, id uuid.UUID) (*Prestation, error) {
	return s.prestations.GetByID(ctx, id)
}

func (s *Service) ListPrestations(ctx context.Context, invoiceID uuid.UUID) ([]Prestation, error) {
	return s.prestations.ListByInvoice(ctx, invoiceID)
}

// -- Employee --

func (s *Service) CreateEmployee(ctx context.Context, e *Employee) error {
	if e.Abbreviation == "" && e.Name == "" {
		return s.reject("employee", validation.Errors{"abbreviation": "Please fill Abbreviation field"})
	}
	return s.employees.Create(ctx, e)
}

func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return s.employees.GetByID(ctx, id)
}

func (s *Service) UpdateEmployee(ctx context.Context, e *Employee) error {
	return s.employees.Update(ctx, e)
}

func (s *Service) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	return s.employees.Delete(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, limit, offset int) ([]*Employee, int, error) {
	return s.employees.List(ctx, limit, offset)
}

// Employees returns the employees with the given ids keyed by ID.
func (s *Service) Employees(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Employee, error) {
	out := make(map[uuid.UUID]*Employee)
	if len(ids) == 0 {
		return out, nil
	}
	items, err := s.employees.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	for _, e := range items {
		out[e.ID] = e
	}
	return out, nil
}

// -- Batch --

// CreateBatch stores b and attaches the unbatched invoices dated within its
// range.
func (s *Service) CreateBatch(ctx context.Context, b *Batch) (int, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := s.reject("invoice_batch", ValidateBatch(b)); err != nil {
		return 0, err
	}
	var assigned int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.batches.Create(ctx, b); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		n, err := s.invoices.AssignBatch(ctx, b.ID, b.Start, b.End)
		if err != nil {
			return fmt.Errorf("assign invoices: %w", err)
		}
		assigned = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("batch_id", b.ID.String()).Int("invoices", assigned).Msg("invoice batch created")
	return assigned, nil
}

func (s *Service) UpdateBatch(ctx context.Context, b *Batch) error {
	if err := s.reject("invoice_batch", ValidateBatch(b)); err != nil {
		return err
	}
	var old *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if old, err = s.batches.GetByID(ctx, b.ID); err != nil {
			return fmt.Errorf("get batch: %w", err)
		}
		return s.batches.Update(ctx, b)
	})
	if err != nil {
		return err
	}
	s.batchFileHook(ctx, old, b)
	return nil
}

// SetBatchFile points b at a newly stored file. The previous file is
// deleted once the change is committed.
func (s *Service) SetBatchFile(ctx context.Context, batchID uuid.UUID, fileID string) (*Batch, error) {
	var old, b *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if old, err = s.batches.GetByID(ctx, batchID); err != nil {
			return fmt.Errorf("get batch: %w", err)
		}
		updated := *old
		updated.FileID = fileID
		b = &updated
		return s.batches.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.batchFileHook(ctx, old, b)
	return b, nil
}

// DeleteBatch removes b and its file. Its invoices are detached.
func (s *Service) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	var old *Batch
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if old, err = s.batches.GetByID(ctx, id); err != nil {
			return fmt.Errorf("get batch: %w", err)
		}
		return s.batches.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.batchFileHook(ctx, old, nil)
	return nil
}

func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return s.batches.GetByID(ctx, id)
}

func (s *Service) ListBatches(ctx context.Context, limit, offset int) ([]*Batch, int, error) {
	return s.batches.List(ctx, limit, offset)
}

// BatchInvoices returns every invoice attached to batchID ordered by number.
func (s *Service) BatchInvoices(ctx context.Context, batchID uuid.UUID) ([]*InvoiceItem, error) {
	var out []*InvoiceItem
	for offset := 0; ; {
		page, total, err := s.invoices.List(ctx, InvoiceFilter{BatchID: &batchID, Limit: 500, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list batch invoices: %w", err)
		}
		out = append(out, page...)
		offset += len(page)
		if len(page) == 0 || offset >= total {
			return out, nil
		}
	}
}
