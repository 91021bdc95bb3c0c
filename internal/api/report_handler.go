package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/service"
	"github.com/banking/fraud-dashboard/internal/session"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// HeaderSignature carries the HMAC of an export body when signing is enabled
	HeaderSignature = "X-Report-Signature"
	// HeaderDigest carries the SHA-256 of an export body
	HeaderDigest = "X-Report-Digest"
)

type ReportHandler struct {
	reportService *service.ReportService
	formatter     *report.Formatter
}

func NewReportHandler(reportService *service.ReportService, formatter *report.Formatter) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		formatter:     formatter,
	}
}

type sessionResponse struct {
	session.View
	Rejected int             `json:"rejected"`
	Report   *reportResponse `json:"report,omitempty"`
}

type reportResponse struct {
	Summary      domain.ReportSummary        `json:"summary"`
	Display      report.SummaryDisplay       `json:"display"`
	Distribution []domain.DistributionBucket `json:"distribution"`
	ByUser       domain.UserGroupSeries      `json:"by_user"`
	RiskPoints   []domain.RiskPoint          `json:"risk_points"`
	Narrative    domain.Narrative            `json:"narrative"`
	Rejects      []domain.RejectedRecord     `json:"rejects"`
	GeneratedAt  time.Time                   `json:"generated_at"`
}

type errorResponse struct {
	Error   string           `json:"error"`
	Session *sessionResponse `json:"session,omitempty"`
}

func (h *ReportHandler) toSessionResponse(v session.View) *sessionResponse {
	resp := &sessionResponse{View: v}
	if v.Report != nil {
		resp.Rejected = len(v.Report.Rejects)
		resp.Report = h.toReportResponse(v.Report)
	}
	return resp
}

func (h *ReportHandler) toReportResponse(rep *domain.Report) *reportResponse {
	rejects := rep.Rejects
	if rejects == nil {
		rejects = []domain.RejectedRecord{}
	}
	return &reportResponse{
		Summary:      rep.Summary,
		Display:      h.formatter.Summary(rep.Summary),
		Distribution: rep.Distribution.Buckets(),
		ByUser:       rep.ByUser,
		RiskPoints:   rep.RiskPoints,
		Narrative:    rep.Narrative,
		Rejects:      rejects,
		GeneratedAt:  rep.GeneratedAt,
	}
}

// CreateSession handles POST /sessions
func (h *ReportHandler) CreateSession(c echo.Context) error {
	v := h.reportService.CreateSession()
	return c.JSON(http.StatusCreated, h.toSessionResponse(v))
}

// GetSession handles GET /sessions/:id
func (h *ReportHandler) GetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	v, err := h.reportService.View(id)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, h.toSessionResponse(v))
}

// UploadFile handles PUT /sessions/:id/file
func (h *ReportHandler) UploadFile(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing multipart field 'file'"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read uploaded file"})
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read uploaded file"})
	}

	v, err := h.reportService.SelectFile(id, fh.Filename, content)
	if err != nil {
		return h.writeError(c, err, &v)
	}
	return c.JSON(http.StatusOK, h.toSessionResponse(v))
}

// Analyze handles POST /sessions/:id/analyze
func (h *ReportHandler) Analyze(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	v, err := h.reportService.Analyze(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err, &v)
	}
	return c.JSON(http.StatusOK, h.toSessionResponse(v))
}

// GetReport handles GET /sessions/:id/report
func (h *ReportHandler) GetReport(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	rep, err := h.reportService.Report(id)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, h.toReportResponse(rep))
}

// GetRecords handles GET /sessions/:id/records
func (h *ReportHandler) GetRecords(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	rows, err := h.reportService.Records(id, filter)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"records": rows,
		"count":   len(rows),
	})
}

// Export handles GET /sessions/:id/export
func (h *ReportHandler) Export(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	exp, err := h.reportService.Export(id, filter)
	if err != nil {
		return h.writeError(c, err, nil)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exp.FileName))
	header.Set(HeaderDigest, exp.Digest)
	if exp.Signature != "" {
		header.Set(HeaderSignature, exp.Signature)
	}
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", exp.Data)
}

// DeleteSession handles DELETE /sessions/:id
func (h *ReportHandler) DeleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	if err := h.reportService.Delete(id); err != nil {
		return h.writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterRoutes registers the API routes
func (h *ReportHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.DeleteSession)
	g.PUT("/:id/file", h.UploadFile)
	g.POST("/:id/analyze", h.Analyze)
	g.GET("/:id/report", h.GetReport)
	g.GET("/:id/records", h.GetRecords)
	g.GET("/:id/export", h.Export)
}

func (h *ReportHandler) writeError(c echo.Context, err error, v *session.View) error {
	var sess *sessionResponse
	if v != nil && v.ID != uuid.Nil {
		sess = h.toSessionResponse(*v)
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, domain.ErrInvalidFileType):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "only .csv files are accepted", Session: sess})
	case errors.Is(err, domain.ErrNoFileSelected):
		return c.JSON(http.StatusConflict, errorResponse{Error: "no file selected", Session: sess})
	case errors.Is(err, domain.ErrSuperseded):
		return c.JSON(http.StatusConflict, errorResponse{Error: "analysis superseded by a newer request", Session: sess})
	case errors.Is(err, domain.ErrReportNotReady):
		return c.JSON(http.StatusConflict, errorResponse{Error: "report not ready"})
	case errors.Is(err, domain.ErrAnalyzerRequestFailed), errors.Is(err, domain.ErrMalformedResponse):
		return c.JSON(http.StatusBadGateway, errorResponse{Error: domain.AnalysisFailedMessage, Session: sess})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func parseFilter(c echo.Context) (report.Filter, error) {
	var f report.Filter

	if raw := c.QueryParam("flagged"); raw != "" {
		flagged, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid flagged value %q", raw)
		}
		f.Flagged = &flagged
	}
	if raw := c.QueryParam("tier"); raw != "" {
		tier, ok := domain.ParseRiskTier(raw)
		if !ok {
			return f, fmt.Errorf("invalid tier %q", raw)
		}
		f.Tier = tier
	}
	f.UserID = c.QueryParam("user_id")
	return f, nil
}
