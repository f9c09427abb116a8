package jobs

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusUploading, StatusProcessing, StatusCompleted, StatusFailed}

// AllStatuses returns every valid status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a raw value into a Status.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no automatic transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions lists the allowed target states per source state. Self
// transitions on processing and the terminal states absorb duplicate
// deliveries; failed -> processing is external re-submission.
var transitions = map[Status][]Status{
	StatusUploading:  {StatusUploading, StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusCompleted},
	StatusFailed:     {StatusFailed, StatusProcessing},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition marks a rejected lifecycle move.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrAlreadyCompleted is returned by Claim when a redelivered job has
// already finished successfully.
var ErrAlreadyCompleted = errors.New("job already completed")

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: %s -> %s: invalid status transition", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Metadata holds probed media properties of the source video.
type Metadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// Record is the persisted lifecycle of one submitted video.
type Record struct {
	ID             string    `json:"id"`
	OriginalName   string    `json:"original_name"`
	StoredFilename string    `json:"stored_filename"`
	SizeBytes      int64     `json:"size_bytes"`
	MimeType       string    `json:"mime_type,omitempty"`
	OriginalURL    string    `json:"original_url,omitempty"`
	LowResURL      string    `json:"low_res_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	Status         Status    `json:"status"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRecord carries the attributes supplied at submission time.
type NewRecord struct {
	OriginalName   string
	StoredFilename string
	SizeBytes      int64
	MimeType       string
	OriginalURL    string
}

// ResultUpdate is a partial update; nil fields are left unchanged.
type ResultUpdate struct {
	Status       *Status
	LowResURL    *string
	ThumbnailURL *string
	Metadata     *Metadata
	ErrorMessage *string
}

// Outcome is what a successful pipeline run writes to the record.
type Outcome struct {
	LowResURL    string
	ThumbnailURL string
	Metadata     Metadata
}

// ListOptions filters and pages List results.
type ListOptions struct {
	Status Status
	Limit  int
	Offset int
}

// apply merges u into r and re-establishes the per-status invariants.
func (u ResultUpdate) apply(r *Record) error {
	target := r.Status
	if u.Status != nil {
		target = *u.Status
	}
	if !CanTransition(r.Status, target) {
		return &TransitionError{ID: r.ID, From: r.Status, To: target}
	}
	if u.LowResURL != nil {
		r.LowResURL = *u.LowResURL
	}
	if u.ThumbnailURL != nil {
		r.ThumbnailURL = *u.ThumbnailURL
	}
	if u.Metadata != nil {
		m := *u.Metadata
		r.Metadata = &m
	}
	if u.ErrorMessage != nil {
		r.ErrorMessage = *u.ErrorMessage
	}
	r.Status = target

	switch target {
	case StatusCompleted:
		if r.Metadata == nil {
			return fmt.Errorf("job %s: completed record requires metadata", r.ID)
		}
		r.ErrorMessage = ""
	case StatusFailed:
		if r.ErrorMessage == "" {
			return fmt.Errorf("job %s: failed record requires an error message", r.ID)
		}
		r.Metadata = nil
		r.LowResURL = ""
		r.ThumbnailURL = ""
	default:
		r.Metadata = nil
		r.ErrorMessage = ""
		r.LowResURL = ""
		r.ThumbnailURL = ""
	}
	return nil
}

func statusPtr(s Status) *Status { return &s }

func stringPtr(s string) *string { return &s }
