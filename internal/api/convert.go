package api

import (
	"vidqueue/internal/deps"
	"vidqueue/internal/jobs"
	"vidqueue/internal/workflow"
)

// FromRecord converts a job record to its API representation.
func FromRecord(rec *jobs.Record) Job {
	if rec == nil {
		return Job{}
	}
	dto := Job{
		ID:             rec.ID,
		OriginalName:   rec.OriginalName,
		StoredFilename: rec.StoredFilename,
		SizeBytes:      rec.SizeBytes,
		MimeType:       rec.MimeType,
		Status:         string(rec.Status),
		OriginalURL:    rec.OriginalURL,
		LowResURL:      rec.LowResURL,
		ThumbnailURL:   rec.ThumbnailURL,
		ErrorMessage:   rec.ErrorMessage,
	}
	if rec.Metadata != nil {
		dto.Metadata = &Metadata{
			DurationSeconds: rec.Metadata.DurationSeconds,
			Width:           rec.Metadata.Width,
			Height:          rec.Metadata.Height,
		}
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRecords converts a slice of records, skipping nil entries.
func FromRecords(recs []*jobs.Record) []Job {
	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromStatusSummary converts the workflow summary into its API form.
func FromStatusSummary(s workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:    s.Running,
		Workers:    s.Workers,
		ActiveJobs: s.ActiveJobs,
		LastError:  s.LastError,
		LastJobID:  s.LastJobID,
		Queue:      s.Queue,
	}
}

// FromDependencies converts binary checks into their API form.
func FromDependencies(results []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(results))
	for _, r := range results {
		out = append(out, DependencyStatus{
			Name:        r.Name,
			Command:     r.Command,
			Description: r.Description,
			Available:   r.Available,
			Detail:      r.Detail,
		})
	}
	return out
}

// MergeJobCounts returns counts for every status, including zero entries.
func MergeJobCounts(counts map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}
