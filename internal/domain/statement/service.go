package statement

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/homecare/internal/domain/invoicing"
	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/civil"
)

// InvoiceSource is the part of the invoicing service documents read.
type InvoiceSource interface {
	InvoicesByIDs(ctx context.Context, ids []uuid.UUID) ([]*invoicing.InvoiceItem, error)
	ListPrestations(ctx context.Context, invoiceID uuid.UUID) ([]invoicing.Prestation, error)
	Employees(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*invoicing.Employee, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*invoicing.Batch, error)
	BatchInvoices(ctx context.Context, batchID uuid.UUID) ([]*invoicing.InvoiceItem, error)
	SetBatchFile(ctx context.Context, batchID uuid.UUID, fileID string) (*invoicing.Batch, error)
}

type PatientSource interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	GetPrescription(ctx context.Context, id uuid.UUID) (*patient.MedicalPrescription, error)
}

type CatalogSource interface {
	Catalog(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*tariff.CareCode, error)
}

// Observer records rendered documents.
type Observer interface {
	ObserveRender(kind string, pages int, d time.Duration, err error)
}

type Config struct {
	Provider Provider
	// Basis is the total recapped on insurer documents.
	Basis    Basis
	Location *time.Location
}

// loadConcurrency bounds the invoices loaded at once.
const loadConcurrency = 4

type Service struct {
	invoices InvoiceSource
	patients PatientSource
	catalog  CatalogSource
	renderer Renderer
	blobs    blobstore.BlobStore
	cfg      Config
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

func NewService(invoices InvoiceSource, patients PatientSource, catalog CatalogSource, renderer Renderer,
	blobs blobstore.BlobStore, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Basis == "" {
		cfg.Basis = BasisGross
	}
	return &Service{
		invoices: invoices,
		patients: patients,
		catalog:  catalog,
		renderer: renderer,
		blobs:    blobs,
		cfg:      cfg,
		logger:   logger.With().Str("component", "statement").Logger(),
		now:      time.Now,
	}
}

func (s *Service) SetObserver(o Observer) { s.observer = o }

// Build composes the document of the given invoices.
func (s *Service) Build(ctx context.Context, ids []uuid.UUID, variant Variant) (*Document, error) {
	if len(ids) == 0 {
		return nil, ErrNoInvoices
	}
	invoices, err := s.invoices.InvoicesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	return s.build(ctx, invoices, variant)
}

// BuildBatch composes the insurer document of every invoice in a batch.
func (s *Service) BuildBatch(ctx context.Context, batchID uuid.UUID) (*Document, error) {
	b, err := s.invoices.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	invoices, err := s.invoices.BatchInvoices(ctx, batchID)
	if err != nil {
		return nil, err
	}
	doc, err := s.build(ctx, invoices, VariantInvoice)
	if err != nil {
		return nil, err
	}
	doc.FileName = BatchFileName(b)
	return doc, nil
}

func (s *Service) build(ctx context.Context, invoices []*invoicing.InvoiceItem, variant Variant) (*Document, error) {
	if len(invoices) == 0 {
		return nil, ErrNoInvoices
	}
	invoices = append([]*invoicing.InvoiceItem(nil), invoices...)
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].Number < invoices[j].Number })

	data, err := s.load(ctx, invoices)
	if err != nil {
		return nil, err
	}
	var pages []Page
	for _, d := range data {
		p, err := Compose(d, s.cfg.Location)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p...)
	}

	doc := &Document{
		Variant:  variant,
		Provider: s.cfg.Provider,
		FileName: FileName(invoices, data[0].Patient.Name, variant),
		Pages:    pages,
	}
	if variant == VariantParticipation {
		doc.Recap = BuildRecap(RecapEntries(pages, BasisParticipation), invoices[0].Date,
			ParticipationReference(invoices[0]))
		return doc, nil
	}
	numbers := make([]string, len(invoices))
	for i, inv := range invoices {
		numbers[i] = inv.Number
	}
	doc.Recap = BuildRecap(RecapEntries(pages, s.cfg.Basis), civil.Day(s.now(), s.cfg.Location),
		PaymentReference(numbers))
	return doc, nil
}

func (s *Service) load(ctx context.Context, invoices []*invoicing.InvoiceItem) ([]InvoiceData, error) {
	data := make([]InvoiceData, len(invoices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, inv := range invoices {
		i, inv := i, inv
		g.Go(func() error {
			d, err := s.loadInvoice(gctx, inv)
			if err != nil {
				return fmt.Errorf("invoice %s: %w", inv.Number, err)
			}
			data[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Service) loadInvoice(ctx context.Context, inv *invoicing.InvoiceItem) (InvoiceData, error) {
	d := InvoiceData{Invoice: inv}
	acts, err := s.invoices.ListPrestations(ctx, inv.ID)
	if err != nil {
		return d, err
	}
	if len(acts) == 0 {
		return d, ErrNoPrestations
	}
	d.Prestations = acts
	if d.Patient, err = s.patients.GetPatient(ctx, inv.PatientID); err != nil {
		return d, fmt.Errorf("get patient: %w", err)
	}

	codeIDs := make([]uuid.UUID, 0, len(acts))
	var employeeIDs []uuid.UUID
	for _, p := range acts {
		codeIDs = append(codeIDs, p.CareCodeID)
		if p.EmployeeID != nil {
			employeeIDs = append(employeeIDs, *p.EmployeeID)
		}
	}
	if d.CareCodes, err = s.catalog.Catalog(ctx, codeIDs); err != nil {
		return d, err
	}
	if d.Employees, err = s.invoices.Employees(ctx, employeeIDs); err != nil {
		return d, err
	}
	if inv.PrescriptionID != nil {
		rx, err := s.patients.GetPrescription(ctx, *inv.PrescriptionID)
		if err != nil {
			return d, fmt.Errorf("get prescription: %w", err)
		}
		date := rx.Date
		d.PrescriptionDate = &date
	}
	return d, nil
}

// Write renders doc to w.
func (s *Service) Write(w io.Writer, doc *Document) error {
	start := s.now()
	err := s.renderer.Render(w, doc)
	if s.observer != nil {
		s.observer.ObserveRender(doc.Variant.String(), len(doc.Pages), s.now().Sub(start), err)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", doc.FileName, err)
	}
	return nil
}

// BatchFile opens the stored document of a batch. The caller closes the
// returned reader.
func (s *Service) BatchFile(ctx context.Context, batchID uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	b, err := s.invoices.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("get batch: %w", err)
	}
	if b.FileID == "" {
		return nil, nil, fmt.Errorf("batch %s has no stored document: %w", batchID, blobstore.ErrBlobNotFound)
	}
	rc, meta, err := s.blobs.Download(ctx, b.FileID)
	if err != nil {
		return nil, nil, fmt.Errorf("open batch document: %w", err)
	}
	return rc, meta, nil
}

// StoreBatch renders the batch document into the blob store and attaches
// it to the batch, replacing any earlier file.
func (s *Service) StoreBatch(ctx context.Context, batchID uuid.UUID) (*invoicing.Batch, error) {
	doc, err := s.BuildBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.Write(pw, doc))
	}()
	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    doc.FileName,
		ContentType: "application/pdf",
		Category:    blobstore.CategoryInvoiceBatch,
		OwnerID:     batchID.String(),
		Description: fmt.Sprintf("%d pages", len(doc.Pages)),
	}, pr)
	pr.Close()
	if err != nil {
		return nil, fmt.Errorf("store batch document: %w", err)
	}

	b, err := s.invoices.SetBatchFile(ctx, batchID, meta.ID)
	if err != nil {
		if derr := s.blobs.Delete(ctx, meta.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("blob_id", meta.ID).Msg("failed to remove unattached batch document")
		}
		return nil, err
	}
	s.logger.Info().Str("batch_id", batchID.String()).Str("blob_id", meta.ID).
		Int("pages", len(doc.Pages)).Msg("batch document stored")
	return b, nil
}
