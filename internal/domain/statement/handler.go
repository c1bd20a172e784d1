package statement

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/invoices/:id/pdf", h.InvoicePDF)
	api.POST("/invoices/pdf", h.InvoicesPDF)
	api.GET("/batches/:id/pdf", h.BatchPDF)
	api.POST("/batches/:id/pdf", h.StoreBatchPDF)
	api.GET("/batches/:id/file", h.BatchFile)
}

type invoicesRequest struct {
	InvoiceIDs []uuid.UUID `json:"invoice_ids"`
	Variant    string      `json:"variant"`
}

// InvoicePDF: GET /invoices/:id/pdf?variant=participation
func (h *Handler) InvoicePDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	variant, err := ParseVariant(c.QueryParam("variant"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.Build(c.Request().Context(), []uuid.UUID{id}, variant)
	if err != nil {
		return documentError(err)
	}
	return h.send(c, doc)
}

func (h *Handler) InvoicesPDF(c echo.Context) error {
	var req invoicesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	variant, err := ParseVariant(req.Variant)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.Build(c.Request().Context(), req.InvoiceIDs, variant)
	if err != nil {
		return documentError(err)
	}
	return h.send(c, doc)
}

func (h *Handler) BatchPDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	doc, err := h.svc.BuildBatch(c.Request().Context(), id)
	if err != nil {
		return documentError(err)
	}
	return h.send(c, doc)
}

// StoreBatchPDF regenerates the stored document of a batch.
func (h *Handler) StoreBatchPDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.StoreBatch(c.Request().Context(), id)
	if err != nil {
		return documentError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"batch_id": b.ID.String(), "file_id": b.FileID})
}

// BatchFile: GET /batches/:id/file returns the stored batch document.
func (h *Handler) BatchFile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.BatchFile(c.Request().Context(), id)
	if err != nil {
		return documentError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

// send renders doc in full before answering so a failed render still maps
// to an error status.
func (h *Handler) send(c echo.Context, doc *Document) error {
	var buf bytes.Buffer
	if err := h.svc.Write(&buf, doc); err != nil {
		return documentError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.FileName))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func documentError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoInvoices), errors.Is(err, ErrNoPrestations), errors.Is(err, ErrUnknownCareCode):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
