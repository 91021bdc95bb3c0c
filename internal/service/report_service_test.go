package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banking/fraud-dashboard/internal/crypto"
	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/banking/fraud-dashboard/internal/events"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const scenarioA = `[
	{"user_id":"u1","amount":"100","risk_score":10,"flagged":false,"reasons":""},
	{"user_id":"u1","amount":"500","risk_score":40,"flagged":true,"reasons":"high amount"}
]`

type stubAnalyzer struct {
	body []byte
	err  error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) ([]byte, error) {
	return a.body, a.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*events.ReportCompletedEvent
	err    error
}

func (p *capturePublisher) PublishReportCompleted(ctx context.Context, event *events.ReportCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) published() []*events.ReportCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.ReportCompletedEvent(nil), p.events...)
}

func newService(a Analyzer, opts Options) *ReportService {
	if opts.Report == (report.Options{}) {
		opts.Report = report.DefaultOptions()
	}
	return NewReportService(a, opts, zap.NewNop())
}

func readySession(t *testing.T, svc *ReportService) uuid.UUID {
	t.Helper()
	v := svc.CreateSession()
	_, err := svc.SelectFile(v.ID, "tx.csv", []byte("user_id,amount\n"))
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), v.ID)
	require.NoError(t, err)
	return v.ID
}

func TestAnalyze_ScenarioA(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(&stubAnalyzer{body: []byte(scenarioA)}, Options{Publisher: pub})

	id := svc.CreateSession().ID
	_, err := svc.SelectFile(id, "tx.csv", []byte("csv"))
	require.NoError(t, err)

	v, err := svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, v.State)
	require.NotNil(t, v.Report)

	assert.Equal(t, domain.ReportSummary{
		Total: 2, Flagged: 1, FlaggedPercentage: 50, TotalAmount: 600, AvgRisk: 25, HighRisk: 1,
	}, v.Report.Summary)
	assert.Equal(t, domain.UserGroupSeries{{UserID: "u1", Total: 2, Flagged: 1}}, v.Report.ByUser)

	svc.Close()
	published := pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, id, published[0].SessionID)
	assert.Equal(t, "tx.csv", published[0].FileName)
	assert.Equal(t, 1, published[0].Summary.Flagged)
}

func TestAnalyze_ScenarioB_RejectsAreExcluded(t *testing.T) {
	body := `[
		{"user_id":"u1","amount":"not-a-number","risk_score":90,"flagged":true,"reasons":"x"},
		{"user_id":"u2","amount":200,"risk_score":20,"flagged":false,"reasons":""},
		{"user_id":"u3","amount":"300","risk_score":35,"flagged":true,"reasons":"Outlier amount"}
	]`
	svc := newService(&stubAnalyzer{body: []byte(body)}, Options{})
	id := readySession(t, svc)

	rep, err := svc.Report(id)
	require.NoError(t, err)

	require.Len(t, rep.Rejects, 1)
	assert.Equal(t, 0, rep.Rejects[0].Index)
	assert.Equal(t, domain.RejectInvalidAmount, rep.Rejects[0].Reason)

	assert.Equal(t, 2, rep.Summary.Total)
	assert.Equal(t, 1, rep.Summary.Flagged)
	assert.Equal(t, 500.0, rep.Summary.TotalAmount)
	assert.Equal(t, 1, rep.Summary.HighRisk)
	assert.Equal(t, "1 record could not be processed.", rep.Narrative.Rejected)
	_, present := rep.ByUser.Lookup("u1")
	assert.False(t, present)
}

func TestAnalyze_NoFileSelected(t *testing.T) {
	svc := newService(&stubAnalyzer{body: []byte(`[]`)}, Options{})
	id := svc.CreateSession().ID

	v, err := svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNoFileSelected)
	assert.Equal(t, session.StateIdle, v.State)
}

func TestAnalyze_AnalyzerFailure(t *testing.T) {
	svc := newService(&stubAnalyzer{err: errors.New("connection refused")}, Options{})
	id := svc.CreateSession().ID
	_, err := svc.SelectFile(id, "tx.csv", []byte("csv"))
	require.NoError(t, err)

	v, err := svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrAnalyzerRequestFailed)
	assert.Equal(t, session.StateFailed, v.State)
	assert.Equal(t, domain.AnalysisFailedMessage, v.Error)
	assert.Equal(t, "tx.csv", v.FileName)
	assert.True(t, v.CanSubmit)

	_, err = svc.Report(id)
	assert.ErrorIs(t, err, domain.ErrReportNotReady)
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	svc := newService(&stubAnalyzer{body: []byte(`{"detail":"oops"}`)}, Options{})
	id := svc.CreateSession().ID
	_, err := svc.SelectFile(id, "tx.csv", []byte("csv"))
	require.NoError(t, err)

	v, err := svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, session.StateFailed, v.State)
	assert.Equal(t, domain.AnalysisFailedMessage, v.Error)
}

// gatedAnalyzer answers each call only when its gate is released, regardless
// of cancellation, to model a slow response arriving late.
type gatedAnalyzer struct {
	started chan string
	gates   map[string]chan struct{}
	bodies  map[string]string
}

func (a *gatedAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) ([]byte, error) {
	key := string(content)
	a.started <- key
	<-a.gates[key]
	return []byte(a.bodies[key]), nil
}

func TestAnalyze_ScenarioC_LastRequestWins(t *testing.T) {
	analyzer := &gatedAnalyzer{
		started: make(chan string, 2),
		gates:   map[string]chan struct{}{"first": make(chan struct{}), "second": make(chan struct{})},
		bodies: map[string]string{
			"first":  `[{"user_id":"slow","amount":1,"risk_score":99,"flagged":true,"reasons":""}]`,
			"second": `[{"user_id":"fast","amount":2,"risk_score":1,"flagged":false,"reasons":""}]`,
		},
	}
	svc := newService(analyzer, Options{})
	id := svc.CreateSession().ID

	_, err := svc.SelectFile(id, "tx.csv", []byte("first"))
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), id)
		firstDone <- err
	}()
	require.Equal(t, "first", <-analyzer.started)

	// Resubmitting with a new file while the first request is in flight
	_, err = svc.SelectFile(id, "tx.csv", []byte("second"))
	require.NoError(t, err)

	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), id)
		secondDone <- err
	}()
	require.Equal(t, "second", <-analyzer.started)

	close(analyzer.gates["second"])
	require.NoError(t, <-secondDone)

	close(analyzer.gates["first"])
	assert.ErrorIs(t, <-firstDone, domain.ErrSuperseded)

	rep, err := svc.Report(id)
	require.NoError(t, err)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, "fast", rep.Records[0].UserID)
	assert.Equal(t, 0, rep.Summary.Flagged, "summary matches the second record set")
}

type ctxAwareAnalyzer struct {
	started chan struct{}
}

func (a *ctxAwareAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) ([]byte, error) {
	a.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnalyze_SupersededCancelsInFlightCall(t *testing.T) {
	analyzer := &ctxAwareAnalyzer{started: make(chan struct{}, 1)}
	svc := newService(analyzer, Options{})
	id := svc.CreateSession().ID
	_, err := svc.SelectFile(id, "a.csv", []byte("a"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), id)
		done <- err
	}()
	<-analyzer.started

	_, err = svc.SelectFile(id, "b.csv", []byte("b"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight analysis was not cancelled")
	}

	v, err := svc.View(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFileSelected, v.State)
	assert.Equal(t, "b.csv", v.FileName)
	assert.Empty(t, v.Error)
}

func TestRecordsAndExport(t *testing.T) {
	body := `[
		{"user_id":"u1","amount":100,"risk_score":10,"flagged":false,"reasons":""},
		{"user_id":"u2","amount":250.5,"risk_score":45,"flagged":true,"reasons":"Impossible location jump, \"fast\""}
	]`
	secret := base64.StdEncoding.EncodeToString([]byte("export-signing-secret-0123456789"))
	signer, err := crypto.NewExportSigner(secret)
	require.NoError(t, err)

	svc := newService(&stubAnalyzer{body: []byte(body)}, Options{Signer: signer})
	id := readySession(t, svc)

	rows, err := svc.Records(id, report.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, report.StatusFlagged, rows[1].Status)
	assert.Equal(t, domain.RiskTierHigh, rows[1].Tier)

	yes := true
	flaggedRows, err := svc.Records(id, report.Filter{Flagged: &yes})
	require.NoError(t, err)
	require.Len(t, flaggedRows, 1)
	assert.Equal(t, "u2", flaggedRows[0].UserID)

	exp, err := svc.Export(id, report.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "fraud_report.csv", exp.FileName)
	assert.Equal(t, 2, exp.Records)
	assert.True(t, signer.Verify(exp.Data, exp.Signature))
	assert.Equal(t, crypto.Digest(exp.Data), exp.Digest)

	raw, err := report.ParseCSV(bytes.NewReader(exp.Data))
	require.NoError(t, err)
	roundTrip, rejects := report.Normalize(raw)
	require.Empty(t, rejects)

	rep, err := svc.Report(id)
	require.NoError(t, err)
	assert.Equal(t, rep.Records, roundTrip)
}

func TestExport_NotReady(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{})
	id := svc.CreateSession().ID

	_, err := svc.Export(id, report.Filter{})
	assert.ErrorIs(t, err, domain.ErrReportNotReady)
	_, err = svc.Records(id, report.Filter{})
	assert.ErrorIs(t, err, domain.ErrReportNotReady)
}

func TestUnknownSession(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{})
	id := uuid.New()

	_, err := svc.View(id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.SelectFile(id, "a.csv", nil)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, svc.Delete(id), domain.ErrSessionNotFound)
}

func TestSelectFile_InvalidType(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{})
	id := svc.CreateSession().ID

	v, err := svc.SelectFile(id, "tx.json", []byte("{}"))
	assert.ErrorIs(t, err, domain.ErrInvalidFileType)
	assert.Equal(t, session.StateIdle, v.State)
}

func TestDelete(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{})
	id := svc.CreateSession().ID

	require.NoError(t, svc.Delete(id))
	_, err := svc.View(id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEvict(t *testing.T) {
	svc := newService(&stubAnalyzer{body: []byte(`[]`)}, Options{SessionTTL: time.Hour})
	id := svc.CreateSession().ID

	assert.Equal(t, 0, svc.Evict(time.Now().Add(30*time.Minute)))
	_, err := svc.View(id)
	require.NoError(t, err)

	assert.Equal(t, 1, svc.Evict(time.Now().Add(61*time.Minute)))
	_, err = svc.View(id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEvict_ReadsKeepReadyReportAlive(t *testing.T) {
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newService(&stubAnalyzer{body: []byte(scenarioA)}, Options{SessionTTL: time.Hour})
	svc.now = func() time.Time { return clock }
	id := readySession(t, svc)

	for i := 0; i < 3; i++ {
		clock = clock.Add(45 * time.Minute)
		_, err := svc.Report(id)
		require.NoError(t, err)
		assert.Equal(t, 0, svc.Evict(clock.Add(30*time.Minute)))
	}

	assert.Equal(t, 1, svc.Evict(clock.Add(61*time.Minute)))
}

func TestEvict_DisabledWithoutTTL(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{})
	svc.CreateSession()
	assert.Equal(t, 0, svc.Evict(time.Now().Add(24*time.Hour)))
}

func TestStartJanitor_StopsOnCancel(t *testing.T) {
	svc := newService(&stubAnalyzer{}, Options{SessionTTL: time.Nanosecond})
	id := svc.CreateSession().ID

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := svc.View(id)
		return errors.Is(err, domain.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestPublishFailureDoesNotAffectReport(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	svc := newService(&stubAnalyzer{body: []byte(scenarioA)}, Options{Publisher: pub})
	id := readySession(t, svc)
	svc.Close()

	_, err := svc.Report(id)
	assert.NoError(t, err)
	assert.Len(t, pub.published(), 1)
}
