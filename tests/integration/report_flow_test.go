package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/banking/fraud-dashboard/internal/analyzer"
	"github.com/banking/fraud-dashboard/internal/api"
	"github.com/banking/fraud-dashboard/internal/config"
	"github.com/banking/fraud-dashboard/internal/crypto"
	"github.com/banking/fraud-dashboard/internal/events"
	"github.com/banking/fraud-dashboard/internal/metrics"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/service"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const analyzerResponse = `[
	{"user_id":"u1","amount":"100","risk_score":10,"flagged":false,"reasons":""},
	{"user_id":"u1","amount":"500","risk_score":40,"flagged":true,"reasons":"high amount"},
	{"user_id":"u2","amount":"not-a-number","risk_score":90,"flagged":true,"reasons":"x"}
]`

type stack struct {
	server   *httptest.Server
	service  *service.ReportService
	producer sarama.SyncProducer
	signer   *crypto.ExportSigner
}

func newStack(t *testing.T, analyzerURL string, producer sarama.SyncProducer) *stack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	signer, err := crypto.NewExportSigner("ZXhwb3J0LXNpZ25pbmctc2VjcmV0LTAxMjM0NTY3ODk=")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	client := analyzer.NewClient(config.AnalyzerConfig{
		BaseURL:         analyzerURL,
		Timeout:         5 * time.Second,
		BreakerFailures: 5,
	})

	opts := service.Options{
		Report:     report.DefaultOptions(),
		SessionTTL: time.Hour,
		Signer:     signer,
		Metrics:    metrics.New(reg),
	}
	if producer != nil {
		opts.Publisher = events.NewReportProducerWith(producer, "fraud.reports.completed", logger)
	}
	svc := service.NewReportService(client, opts, logger)

	handler := api.NewReportHandler(svc, report.NewFormatter(report.DefaultLocale))
	e := api.NewRouter(handler, api.RouterOptions{
		MaxUploadSize: "1M",
		Gatherer:      reg,
		AnalyzerState: client.State,
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &stack{server: srv, service: svc, producer: producer, signer: signer}
}

func (s *stack) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *stack) upload(t *testing.T, id, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return s.do(t, http.MethodPut, "/sessions/"+id+"/file", &buf, w.FormDataContentType())
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createSession(t *testing.T, s *stack) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/sessions", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		ID string `json:"session_id"`
	}
	decode(t, resp, &body)
	return body.ID
}

// TestReportFlow drives upload, analysis, report and export end to end
func TestReportFlow(t *testing.T) {
	var uploads atomic.Int32
	analyzerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Close()
		if !strings.HasSuffix(hdr.Filename, ".csv") {
			http.Error(w, "bad file", http.StatusBadRequest)
			return
		}
		uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, analyzerResponse)
	}))
	defer analyzerSrv.Close()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	s := newStack(t, analyzerSrv.URL, producer)

	// 1. Upload and analyze
	id := createSession(t, s)
	resp := s.upload(t, id, "transactions.csv", "user_id,amount\nu1,100\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/sessions/"+id+"/analyze", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var analyzed struct {
		State    string `json:"state"`
		Rejected int    `json:"rejected"`
	}
	decode(t, resp, &analyzed)
	assert.Equal(t, "READY", analyzed.State)
	assert.Equal(t, 1, analyzed.Rejected)
	assert.Equal(t, int32(1), uploads.Load())

	// 2. Report
	resp = s.do(t, http.MethodGet, "/sessions/"+id+"/report", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep struct {
		Summary struct {
			Total       int     `json:"total"`
			Flagged     int     `json:"flagged"`
			TotalAmount float64 `json:"total_amount"`
			HighRisk    int     `json:"high_risk"`
		} `json:"summary"`
		Narrative struct {
			FlaggedSummary string `json:"flagged_summary"`
			Rejected       string `json:"rejected"`
		} `json:"narrative"`
	}
	decode(t, resp, &rep)
	assert.Equal(t, 2, rep.Summary.Total)
	assert.Equal(t, 1, rep.Summary.Flagged)
	assert.Equal(t, 600.0, rep.Summary.TotalAmount)
	assert.Equal(t, 1, rep.Summary.HighRisk)
	assert.Equal(t, "1 record could not be processed.", rep.Narrative.Rejected)

	// 3. Export
	resp = s.do(t, http.MethodGet, "/sessions/"+id+"/export", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, s.signer.Verify(data, resp.Header.Get(api.HeaderSignature)))
	assert.Equal(t, crypto.Digest(data), resp.Header.Get(api.HeaderDigest))
	assert.Equal(t, "user_id,amount,flagged,risk_score,reasons\nu1,100,false,10,\nu1,500,true,40,high amount\n", string(data))

	// 4. Event published and metrics recorded
	s.service.Close()
	require.NoError(t, s.producer.Close())

	resp = s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), `fraud_report_analyses_total{outcome="ready"} 1`)
}

// TestReportFlow_ResubmitSupersedes cancels a slow analysis by selecting a new file
func TestReportFlow_ResubmitSupersedes(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slowStarted := make(chan struct{}, 1)

	analyzerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Close()
		if hdr.Filename == "slow.csv" {
			slowStarted <- struct{}{}
			select {
			case <-r.Context().Done():
				return
			case <-release:
			}
		}
		_, _ = io.WriteString(w, `[{"user_id":"`+strings.TrimSuffix(hdr.Filename, ".csv")+`","amount":1,"risk_score":1,"flagged":false,"reasons":""}]`)
	}))
	defer analyzerSrv.Close()

	s := newStack(t, analyzerSrv.URL, nil)
	id := createSession(t, s)
	require.Equal(t, http.StatusOK, s.upload(t, id, "slow.csv", "a").StatusCode)

	firstStatus := make(chan int, 1)
	go func() {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, s.server.URL+"/sessions/"+id+"/analyze", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			firstStatus <- 0
			return
		}
		resp.Body.Close()
		firstStatus <- resp.StatusCode
	}()
	<-slowStarted

	require.Equal(t, http.StatusOK, s.upload(t, id, "fast.csv", "b").StatusCode)
	assert.Equal(t, http.StatusConflict, <-firstStatus)

	resp := s.do(t, http.MethodPost, "/sessions/"+id+"/analyze", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows, err := s.service.Records(uuid.MustParse(id), report.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fast", rows[0].UserID)

	resp = s.do(t, http.MethodGet, "/health", nil, "")
	var health map[string]string
	decode(t, resp, &health)
	assert.Equal(t, "closed", health["analyzer"])
}
