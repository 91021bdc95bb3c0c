package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banking/fraud-dashboard/internal/crypto"
	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/banking/fraud-dashboard/internal/events"
	"github.com/banking/fraud-dashboard/internal/metrics"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Analyzer scores an uploaded CSV and returns the raw response body
type Analyzer interface {
	Analyze(ctx context.Context, fileName string, content []byte) ([]byte, error)
}

// Publisher receives summaries of completed reports
type Publisher interface {
	PublishReportCompleted(ctx context.Context, event *events.ReportCompletedEvent) error
}

// Options tunes a ReportService
type Options struct {
	Report     report.Options
	SessionTTL time.Duration
	Publisher  Publisher
	Signer     *crypto.ExportSigner
	Metrics    *metrics.Metrics
}

// ExportResult is a rendered CSV export
type ExportResult struct {
	FileName  string
	Data      []byte
	Records   int
	Digest    string
	Signature string
}

type ReportService struct {
	analyzer  Analyzer
	publisher Publisher
	signer    *crypto.ExportSigner
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      report.Options
	ttl       time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.UploadSession

	publishWG sync.WaitGroup
}

func NewReportService(analyzer Analyzer, opts Options, logger *zap.Logger) *ReportService {
	return &ReportService{
		analyzer:  analyzer,
		publisher: opts.Publisher,
		signer:    opts.Signer,
		metrics:   opts.Metrics,
		logger:    logger,
		opts:      opts.Report,
		ttl:       opts.SessionTTL,
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*session.UploadSession),
	}
}

// CreateSession registers a new idle upload session
func (s *ReportService) CreateSession() session.View {
	sess := session.NewWithClock(uuid.New(), s.now)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(active)
	return sess.Snapshot()
}

// View returns the current view of a session
func (s *ReportService) View(id uuid.UUID) (session.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return session.View{}, err
	}
	return sess.Snapshot(), nil
}

// SelectFile stores the uploaded CSV in the session
func (s *ReportService) SelectFile(id uuid.UUID, name string, content []byte) (session.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return session.View{}, err
	}
	if err := sess.SelectFile(name, content); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// Analyze submits the selected file and, if this submission is still the
// latest when the analyzer answers, publishes the resulting report. A
// superseded submission returns domain.ErrSuperseded and changes nothing.
func (s *ReportService) Analyze(ctx context.Context, id uuid.UUID) (session.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return session.View{}, err
	}

	sub, err := sess.Begin(ctx)
	if err != nil {
		return sess.Snapshot(), err
	}

	file := sub.File()
	log := s.logger.With(
		zap.String("session_id", id.String()),
		zap.String("file_name", file.Name),
		zap.Uint64("generation", sub.Generation()),
	)

	started := s.now()
	payload, err := s.analyzer.Analyze(sub.Context(), file.Name, file.Content)
	took := s.now().Sub(started)
	if err != nil {
		return s.fail(sess, sub, log, metrics.OutcomeFailed, took, err)
	}

	raw, err := report.DecodeBatch(payload)
	if err != nil {
		return s.fail(sess, sub, log, metrics.OutcomeMalformed, took, err)
	}

	records, rejects := report.Normalize(raw)
	rep := report.Build(records, rejects, s.opts, s.now())

	if !sess.Complete(sub, rep) {
		s.metrics.ObserveAnalysis(metrics.OutcomeSuperseded, took)
		log.Info("Discarding superseded analysis result")
		return sess.Snapshot(), domain.ErrSuperseded
	}

	s.metrics.ObserveAnalysis(metrics.OutcomeReady, took)
	s.metrics.ObserveRecords(len(records), len(rejects))
	if len(rejects) > 0 {
		log.Warn("Analyzer records rejected",
			zap.Int("rejected", len(rejects)),
			zap.Any("reasons", countReasons(rejects)),
		)
	}
	log.Info("Report ready",
		zap.Int("records", len(records)),
		zap.Int("flagged", rep.Summary.Flagged),
		zap.Duration("analyzer_latency", took),
	)

	s.asyncPublish(events.NewReportCompletedEvent(id, file.Name, rep))
	return sess.Snapshot(), nil
}

func (s *ReportService) fail(
	sess *session.UploadSession,
	sub *session.Submission,
	log *zap.Logger,
	outcome string,
	took time.Duration,
	cause error,
) (session.View, error) {
	if !sess.Fail(sub, domain.AnalysisFailedMessage) {
		s.metrics.ObserveAnalysis(metrics.OutcomeSuperseded, took)
		log.Info("Discarding superseded analysis failure", zap.Error(cause))
		return sess.Snapshot(), domain.ErrSuperseded
	}

	s.metrics.ObserveAnalysis(outcome, took)
	log.Error("Analysis failed", zap.Error(cause))

	if !errors.Is(cause, domain.ErrMalformedResponse) && !errors.Is(cause, domain.ErrAnalyzerRequestFailed) {
		cause = fmt.Errorf("%w: %v", domain.ErrAnalyzerRequestFailed, cause)
	}
	return sess.Snapshot(), cause
}

// asyncPublish sends the event in the background with panic protection
func (s *ReportService) asyncPublish(event *events.ReportCompletedEvent) {
	if s.publisher == nil {
		return
	}

	s.publishWG.Add(1)
	go func() {
		defer s.publishWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic in async report publish", zap.Any("panic", r))
			}
		}()

		// Use a detached context for async operations
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.publisher.PublishReportCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish report event",
				zap.String("session_id", event.SessionID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Report returns the ready report of a session
func (s *ReportService) Report(id uuid.UUID) (*domain.Report, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	v := sess.Snapshot()
	if v.State != session.StateReady || v.Report == nil {
		return nil, domain.ErrReportNotReady
	}
	return v.Report, nil
}

// Records returns the filtered table rows of the ready report
func (s *ReportService) Records(id uuid.UUID, filter report.Filter) ([]report.Row, error) {
	rep, err := s.Report(id)
	if err != nil {
		return nil, err
	}
	return report.Rows(filter.Apply(rep.Records, s.opts), s.opts), nil
}

// Export renders the filtered records of the ready report as CSV
func (s *ReportService) Export(id uuid.UUID, filter report.Filter) (*ExportResult, error) {
	rep, err := s.Report(id)
	if err != nil {
		return nil, err
	}

	records := filter.Apply(rep.Records, s.opts)
	data, err := report.ToCSV(records)
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}

	return &ExportResult{
		FileName:  report.ExportFileName,
		Data:      data,
		Records:   len(records),
		Digest:    crypto.Digest(data),
		Signature: s.signer.Sign(data),
	}, nil
}

// Delete discards a session and cancels its in-flight submission
func (s *ReportService) Delete(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Close()
	s.metrics.SetActiveSessions(active)
	return nil
}

// Evict removes sessions neither read nor changed for longer than the TTL and
// returns how many were removed. Sessions mid-submission are kept.
func (s *ReportService) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	var expired []*session.UploadSession
	for id, sess := range s.sessions {
		if sess.Snapshot().State == session.StateSubmitting {
			continue
		}
		if now.Sub(sess.IdleSince()) > s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("Evicted idle sessions", zap.Int("count", len(expired)), zap.Int("active", active))
	}
	s.metrics.SetActiveSessions(active)
	return len(expired)
}

// StartJanitor evicts idle sessions every interval until ctx is done
func (s *ReportService) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Evict(now)
		}
	}
}

// Close waits for pending event publishes
func (s *ReportService) Close() {
	s.publishWG.Wait()
}

func (s *ReportService) get(id uuid.UUID) (*session.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess.Touch()
	return sess, nil
}

func countReasons(rejects []domain.RejectedRecord) map[domain.RejectReason]int {
	counts := make(map[domain.RejectReason]int)
	for _, r := range rejects {
		counts[r.Reason]++
	}
	return counts
}
