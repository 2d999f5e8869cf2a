package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/export"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
	"github.com/joseph-ayodele/site-invoices/internal/pdftext"
	"github.com/joseph-ayodele/site-invoices/internal/repository"
)

const invoiceText = `ACME Building Supplies Ltd
Invoice No: INV-7
Date: 01/02/2024
Cabling  10  M  25.00  250.00
`

type failingModel struct{}

func (failingModel) Extract(context.Context, string) (llm.ModelInvoice, error) {
	return llm.ModelInvoice{}, llm.ErrExtractionFailed
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(logger) })
	require.NoError(t, repository.Migrate(ctx, db))

	repo := repository.NewSupplierInvoiceRepository(db, logger)
	svc := invoices.NewService(invoices.Deps{
		Text:     pdftext.NewExtractor(pdftext.Config{}, logger),
		Model:    failingModel{},
		Invoices: repo,
		Runs:     repository.NewExtractionRunRepository(db, logger),
		Exporter: export.NewService(repo, logger),
	}, 1<<16, logger)
	return New(svc, Options{MaxUploadBytes: 1 << 16}, logger)
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "acme.txt", []byte(invoiceText), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	body, ct = multipartBody(t, "notes.txt", []byte("hello world"), nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", body)
	req.Header.Set("Content-Type", ct)
	rec = do(s, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, common.MsgNotInvoice, errorBody(t, rec))
}

func TestValidateEndpoint_MissingFile(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", nil)
	rec := do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractEndpoint(t *testing.T) {
	s := newTestServer(t)

	payload, _ := json.Marshal(map[string]string{"text": invoiceText})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/extract", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "INV-7", got["invoiceNumber"])

	payload, _ = json.Marshal(map[string]string{"text": invoiceText, "mode": "model"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices/extract", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = do(s, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, common.MsgExtractionFailed, errorBody(t, rec))
}

func TestIngestAndRead(t *testing.T) {
	s := newTestServer(t)
	projectID := uuid.NewString()

	body, ct := multipartBody(t, "acme.txt", []byte(invoiceText), map[string]string{"project_id": projectID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Invoice struct {
			ID string `json:"id"`
		} `json:"invoice"`
		Deduplicated bool `json:"deduplicated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.False(t, created.Deduplicated)

	body, ct = multipartBody(t, "acme.txt", []byte(invoiceText), map[string]string{"project_id": projectID})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusOK, do(s, req).Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+created.Invoice.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/invoices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Invoices []map[string]any `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Invoices, 1)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/invoices/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	b, _ := io.ReadAll(rec.Body)
	assert.Equal(t, []byte("PK"), b[:2])

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/extraction-runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetInvoice_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := do(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{common.NotInvoiceError(), http.StatusUnprocessableEntity},
		{common.ExtractionFailedError(), http.StatusBadGateway},
		{common.InvalidArgumentError("x"), http.StatusBadRequest},
		{common.NotFoundError("x"), http.StatusNotFound},
		{common.FailedPreconditionError("x"), http.StatusServiceUnavailable},
		{status.Error(codes.Internal, "x"), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _ := httpStatus(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
