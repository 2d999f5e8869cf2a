package invoices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
	"github.com/joseph-ayodele/site-invoices/internal/export"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
	"github.com/joseph-ayodele/site-invoices/internal/normalize"
	"github.com/joseph-ayodele/site-invoices/internal/pdftext"
	"github.com/joseph-ayodele/site-invoices/internal/repository"
)

const invoiceText = `ACME Building Supplies Ltd
Invoice No: INV-2024-001
Date: 15/03/2024
Cabling  10  M  25.00  250.00
Total  250.00
`

type fakeModel struct {
	out   llm.ModelInvoice
	err   error
	calls int
}

func (f *fakeModel) Extract(_ context.Context, _ string) (llm.ModelInvoice, error) {
	f.calls++
	return f.out, f.err
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, model ModelExtractor) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(logger) })
	require.NoError(t, repository.Migrate(ctx, db))

	invoices := repository.NewSupplierInvoiceRepository(db, logger)
	deps := Deps{
		Text:       pdftext.NewExtractor(pdftext.Config{}, logger),
		Normalizer: normalize.New(logger, normalize.WithClock(func() time.Time { return fixedNow })),
		Invoices:   invoices,
		Runs:       repository.NewExtractionRunRepository(db, logger),
		Exporter:   export.NewService(invoices, logger),
	}
	if model != nil {
		deps.Model = model
	}
	return NewService(deps, 1<<20, logger)
}

func TestValidateUpload(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	text, err := svc.ValidateUpload(ctx, "acme.txt", []byte(invoiceText))
	require.NoError(t, err)
	assert.Equal(t, invoiceText, text)

	_, err = svc.ValidateUpload(ctx, "notes.txt", []byte("shopping list\nmilk\neggs\n"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, common.ReasonNotInvoice, common.ReasonOf(err))

	_, err = svc.ValidateUpload(ctx, "photo.jpg", []byte(invoiceText))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, common.ReasonOf(err))

	_, err = svc.ValidateUpload(ctx, "empty.txt", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestValidateUpload_TooLarge(t *testing.T) {
	svc := newTestService(t, nil)
	big := make([]byte, (1<<20)+1)

	_, err := svc.ValidateUpload(context.Background(), "big.txt", big)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestExtract_Heuristic(t *testing.T) {
	svc := newTestService(t, nil)

	rec, err := svc.Extract(context.Background(), ExtractRequest{Text: invoiceText})
	require.NoError(t, err)
	assert.Equal(t, "ACME Building Supplies Ltd", rec.VendorName)
	assert.Equal(t, "INV-2024-001", rec.InvoiceNumber)
	assert.True(t, rec.InvoiceDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.Len(t, rec.Items, 1)
	assert.NotEmpty(t, rec.Items[0].ID)

	_, err = svc.Extract(context.Background(), ExtractRequest{Text: ""})
	assert.Equal(t, common.ReasonNotInvoice, common.ReasonOf(err))
}

func TestExtract_Model(t *testing.T) {
	model := &fakeModel{out: llm.ModelInvoice{
		VendorName:  "ACME",
		InvoiceNo:   "42",
		InvoiceDate: "not a date",
		TotalSum:    99.5,
		Items:       []llm.ModelLineItem{{Description: "Sand", Unit: "tons", Quantity: 2.6, UnitPrice: 10, ElementCost: 26}},
	}}
	svc := newTestService(t, model)

	rec, err := svc.Extract(context.Background(), ExtractRequest{Text: "anything", Mode: "model"})
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, "42", rec.InvoiceNumber)
	assert.True(t, rec.InvoiceDate.Equal(fixedNow))
	require.Len(t, rec.Items, 1)
	assert.Equal(t, 3, rec.Items[0].Quantity)
}

func TestExtract_ModelFailure(t *testing.T) {
	svc := newTestService(t, &fakeModel{err: fmt.Errorf("%w: boom", llm.ErrExtractionFailed)})

	_, err := svc.Extract(context.Background(), ExtractRequest{Text: "anything", Mode: "MODEL"})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, common.ReasonExtractionFailed, common.ReasonOf(err))
	assert.Equal(t, common.MsgExtractionFailed, status.Convert(err).Message())
}

func TestExtract_ModelNotConfigured(t *testing.T) {
	svc := newTestService(t, nil)
	assert.False(t, svc.ModelEnabled())

	_, err := svc.Extract(context.Background(), ExtractRequest{Text: "x", Mode: "model"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestExtract_UnknownMode(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Extract(context.Background(), ExtractRequest{Text: invoiceText, Mode: "ocr"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIngest_StoresAndDeduplicates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	first, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "in/acme.txt", Data: []byte(invoiceText)})
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.Equal(t, "acme.txt", first.Invoice.Filename)
	assert.Equal(t, "HEURISTIC", first.Invoice.Method)
	assert.Len(t, first.Invoice.Items, 1)

	second, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "copy.txt", Data: []byte(invoiceText)})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)

	list, err := svc.List(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := svc.Get(ctx, first.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", got.InvoiceNumber)

	runs, err := svc.Runs(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "SUCCEEDED", runs[0].Status)
	require.NotNil(t, runs[0].InvoiceID)
	assert.Equal(t, first.Invoice.ID, *runs[0].InvoiceID)
}

// staleLookup reports the first hash lookups as missing, as a concurrent
// ingest that has not committed yet would look.
type staleLookup struct {
	repository.SupplierInvoiceRepository
	misses int
}

func (r *staleLookup) GetByContentHash(ctx context.Context, projectID uuid.UUID, hash string) (*entity.SupplierInvoice, error) {
	if r.misses > 0 {
		r.misses--
		return nil, common.ErrNotFound
	}
	return r.SupplierInvoiceRepository.GetByContentHash(ctx, projectID, hash)
}

func TestIngest_DuplicateInsertDeduplicates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	first, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "acme.txt", Data: []byte(invoiceText)})
	require.NoError(t, err)

	svc.deps.Invoices = &staleLookup{SupplierInvoiceRepository: svc.deps.Invoices, misses: 1}
	second, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "again.txt", Data: []byte(invoiceText)})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)

	list, err := svc.List(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	runs, err := svc.Runs(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "SUCCEEDED", run.Status)
	}
}

func TestIngest_ModelFailureRecordsRun(t *testing.T) {
	svc := newTestService(t, &fakeModel{err: errors.New("timeout")})
	ctx := context.Background()
	projectID := uuid.NewString()

	_, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "acme.txt", Data: []byte(invoiceText), Mode: "model"})
	assert.Equal(t, common.ReasonExtractionFailed, common.ReasonOf(err))

	runs, err := svc.Runs(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "FAILED", runs[0].Status)
	assert.Equal(t, common.MsgExtractionFailed, runs[0].ErrorMessage)

	list, err := svc.List(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIngest_InvalidProject(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Ingest(context.Background(), IngestRequest{ProjectID: "nope", Filename: "a.txt", Data: []byte(invoiceText)})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Get(context.Background(), uuid.NewString())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.Get(context.Background(), "bad-id")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestExport(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	_, err := svc.Ingest(ctx, IngestRequest{ProjectID: projectID, Filename: "acme.txt", Data: []byte(invoiceText)})
	require.NoError(t, err)

	out, err := svc.Export(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), out[:2])
}
