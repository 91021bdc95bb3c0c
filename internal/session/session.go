package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/google/uuid"
)

// State is a step of the upload → analyze → render flow
type State string

const (
	StateIdle         State = "IDLE"
	StateFileSelected State = "FILE_SELECTED"
	StateSubmitting   State = "SUBMITTING"
	StateReady        State = "READY"
	StateFailed       State = "FAILED"
)

// File is the CSV the user selected
type File struct {
	Name    string
	Content []byte
}

// Submission is one in-flight analysis. Its context is cancelled as soon as
// a newer submission or file selection supersedes it.
type Submission struct {
	ctx        context.Context
	generation uint64
	file       File
}

// Context is cancelled when the submission is superseded
func (s *Submission) Context() context.Context { return s.ctx }

// File returns the file being analyzed
func (s *Submission) File() File { return s.file }

// Generation identifies the submission within its session
func (s *Submission) Generation() uint64 { return s.generation }

// View is a consistent read of a session
type View struct {
	ID        uuid.UUID      `json:"session_id"`
	State     State          `json:"state"`
	FileName  string         `json:"file_name,omitempty"`
	Error     string         `json:"error,omitempty"`
	CanSubmit bool           `json:"can_submit"`
	Report    *domain.Report `json:"-"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UploadSession owns the selected file and the current report of one user.
// The report is replaced wholesale on every successful analysis.
type UploadSession struct {
	mu         sync.Mutex
	id         uuid.UUID
	state      State
	file       *File
	errMsg     string
	report     *domain.Report
	generation uint64
	cancel     context.CancelFunc
	updatedAt  time.Time
	lastSeen   time.Time
	now        func() time.Time
}

// New creates an idle session
func New(id uuid.UUID) *UploadSession {
	return NewWithClock(id, time.Now)
}

// NewWithClock creates an idle session that reads time from now
func NewWithClock(id uuid.UUID, now func() time.Time) *UploadSession {
	created := now()
	return &UploadSession{
		id:        id,
		state:     StateIdle,
		updatedAt: created,
		lastSeen:  created,
		now:       now,
	}
}

// ID returns the session identifier
func (s *UploadSession) ID() uuid.UUID { return s.id }

// IsCSV reports whether name carries a .csv extension
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// SelectFile holds a new file for analysis. Selecting while a submission is
// in flight supersedes that submission.
func (s *UploadSession) SelectFile(name string, content []byte) error {
	if !IsCSV(name) {
		return domain.ErrInvalidFileType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.supersedeLocked()
	s.file = &File{Name: name, Content: content}
	s.state = StateFileSelected
	s.errMsg = ""
	s.report = nil
	s.touchLocked()
	return nil
}

// Begin moves the session to Submitting. Any prior error and report are
// cleared and any earlier in-flight submission is cancelled.
func (s *UploadSession) Begin(parent context.Context) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, domain.ErrNoFileSelected
	}

	s.supersedeLocked()

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.state = StateSubmitting
	s.errMsg = ""
	s.report = nil
	s.touchLocked()

	return &Submission{ctx: ctx, generation: s.generation, file: *s.file}, nil
}

// Complete publishes report for sub. It returns false, leaving the session
// untouched, when sub is no longer the latest submission.
func (s *UploadSession) Complete(sub *Submission, report *domain.Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(sub) {
		return false
	}

	s.finishLocked()
	s.state = StateReady
	s.report = report
	return true
}

// Fail records a failed analysis for sub. The file selection is kept so the
// user can retry. Stale submissions are ignored and return false.
func (s *UploadSession) Fail(sub *Submission, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(sub) {
		return false
	}

	s.finishLocked()
	s.state = StateFailed
	s.errMsg = message
	return true
}

// Snapshot returns the state, file, error and report as one consistent view
func (s *UploadSession) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.id,
		State:     s.state,
		Error:     s.errMsg,
		Report:    s.report,
		UpdatedAt: s.updatedAt,
	}
	if s.file != nil {
		v.FileName = s.file.Name
	}
	v.CanSubmit = s.file != nil && s.state != StateSubmitting
	return v
}

// Touch records read activity without changing the state or UpdatedAt
func (s *UploadSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

// IdleSince reports when the session was last read or changed state
func (s *UploadSession) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close cancels any in-flight submission
func (s *UploadSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
}

func (s *UploadSession) isCurrentLocked(sub *Submission) bool {
	return sub != nil && s.state == StateSubmitting && sub.generation == s.generation
}

func (s *UploadSession) supersedeLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *UploadSession) finishLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.touchLocked()
}

func (s *UploadSession) touchLocked() {
	s.updatedAt = s.now()
	s.lastSeen = s.updatedAt
}
