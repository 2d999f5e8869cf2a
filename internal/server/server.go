// Package server exposes the invoices service over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
)

const requestIDHeader = "X-Request-ID"

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

type Server struct {
	e      *gin.Engine
	svc    *invoices.Service
	opts   Options
	logger *slog.Logger
}

func New(svc *invoices.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = constants.MaxUploadBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	s := &Server{e: gin.New(), svc: svc, opts: opts, logger: logger}
	s.initRoutes()
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) initRoutes() {
	s.e.Use(gin.Recovery())
	s.e.Use(s.requestContext())
	s.e.Use(s.accessLog())
	s.e.Use(s.corsMiddleware())
	s.e.MaxMultipartMemory = s.opts.MaxUploadBytes

	s.e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	g := s.e.Group("/api/v1")
	g.POST("/invoices/validate", s.handleValidate)
	g.POST("/invoices/extract", s.handleExtract)
	g.POST("/invoices", s.handleIngest)
	g.GET("/invoices/:id", s.handleGetInvoice)
	g.GET("/projects/:id/invoices", s.handleListInvoices)
	g.GET("/projects/:id/invoices/export", s.handleExport)
	g.GET("/projects/:id/extraction-runs", s.handleListRuns)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	if len(s.opts.AllowedOrigins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = s.opts.AllowedOrigins
	cfg.AddAllowHeaders(requestIDHeader)
	cfg.AddExposeHeaders(requestIDHeader, "Content-Disposition")
	return cors.New(cfg)
}

// requestContext tags each request with an id and bounds it with the timeout.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		ctx, cancel := context.WithTimeout(common.WithRequestID(c.Request.Context(), rid), s.opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http.request",
			"request_id", common.RequestIDFromContext(c.Request.Context()),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

type validateResponse struct {
	Valid      bool `json:"valid"`
	TextLength int  `json:"textLength"`
}

func (s *Server) handleValidate(c *gin.Context) {
	filename, data, err := s.readUpload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	text, err := s.svc.ValidateUpload(c.Request.Context(), filename, data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, validateResponse{Valid: true, TextLength: len(text)})
}

type extractRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	rec, err := s.svc.Extract(c.Request.Context(), invoices.ExtractRequest{Text: req.Text, Mode: req.Mode})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleIngest(c *gin.Context) {
	filename, data, err := s.readUpload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.svc.Ingest(c.Request.Context(), invoices.IngestRequest{
		ProjectID: c.PostForm("project_id"),
		Filename:  filename,
		Data:      data,
		Mode:      c.PostForm("mode"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	code := http.StatusCreated
	if res.Deduplicated {
		code = http.StatusOK
	}
	c.JSON(code, gin.H{"invoice": res.Invoice, "deduplicated": res.Deduplicated})
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	inv, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleListInvoices(c *gin.Context) {
	invs, err := s.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invs})
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.svc.Runs(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleExport(c *gin.Context) {
	projectID := c.Param("id")
	out, err := s.svc.Export(c.Request.Context(), projectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices-%s.xlsx"`, projectID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)
}

// readUpload reads the multipart "file" field, refusing anything over the cap.
func (s *Server) readUpload(c *gin.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, common.InvalidArgumentError("file is required")
	}
	if fh.Size > s.opts.MaxUploadBytes {
		return "", nil, common.InvalidArgumentErrorf("file must be at most %d bytes", s.opts.MaxUploadBytes)
	}
	data, err := readAll(fh, s.opts.MaxUploadBytes)
	if err != nil {
		return "", nil, err
	}
	return fh.Filename, data, nil
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, common.InternalErrorf("open upload: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, common.InternalErrorf("read upload: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, common.InvalidArgumentErrorf("file must be at most %d bytes", limit)
	}
	return data, nil
}

// writeError maps a status error to an HTTP response. Internal detail is
// logged and replaced by a generic message.
func (s *Server) writeError(c *gin.Context, err error) {
	code, msg := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("http.handler.error",
			"request_id", common.RequestIDFromContext(c.Request.Context()),
			"path", c.FullPath(),
			"error", err,
		)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func httpStatus(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "request timed out"
	}
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError, err.Error()
	}
	switch common.ReasonOf(err) {
	case common.ReasonNotInvoice:
		return http.StatusUnprocessableEntity, st.Message()
	case common.ReasonExtractionFailed:
		return http.StatusBadGateway, st.Message()
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return http.StatusBadRequest, st.Message()
	case codes.NotFound:
		return http.StatusNotFound, st.Message()
	case codes.FailedPrecondition:
		return http.StatusServiceUnavailable, st.Message()
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, st.Message()
	}
}
