package domain

import "errors"

var (
	// ErrNoFileSelected is returned when an analysis is requested before a file was chosen
	ErrNoFileSelected = errors.New("no file selected")
	// ErrInvalidFileType is returned for uploads without a .csv extension
	ErrInvalidFileType = errors.New("only .csv files are accepted")
	// ErrAnalyzerRequestFailed covers network failures and non-success analyzer responses
	ErrAnalyzerRequestFailed = errors.New("analyzer request failed")
	// ErrMalformedResponse is returned when the analyzer payload is not a list of records
	ErrMalformedResponse = errors.New("malformed analyzer response")
	// ErrSuperseded is returned when a newer submission replaced the one being processed
	ErrSuperseded = errors.New("submission superseded by a newer request")
	// ErrSessionNotFound is returned for unknown or evicted sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrReportNotReady is returned when report data is requested outside the Ready state
	ErrReportNotReady = errors.New("report not ready")
)

// AnalysisFailedMessage is the retryable message shown for any batch-level failure
const AnalysisFailedMessage = "Failed to analyze CSV. Please check your file format."
