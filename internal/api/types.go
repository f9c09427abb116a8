package api

import "vidqueue/internal/queue"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job record in a transport-friendly format.
type Job struct {
	ID             string    `json:"id"`
	OriginalName   string    `json:"originalName"`
	StoredFilename string    `json:"storedFilename"`
	SizeBytes      int64     `json:"sizeBytes"`
	MimeType       string    `json:"mimeType,omitempty"`
	Status         string    `json:"status"`
	OriginalURL    string    `json:"originalUrl,omitempty"`
	LowResURL      string    `json:"lowResUrl,omitempty"`
	ThumbnailURL   string    `json:"thumbnailUrl,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      string    `json:"createdAt,omitempty"`
	UpdatedAt      string    `json:"updatedAt,omitempty"`
}

// Metadata carries probed media properties.
type Metadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// Links holds download URLs for a job's objects. Low-res and thumbnail links
// are only present once the job completed.
type Links struct {
	Original  string `json:"original"`
	LowRes    string `json:"lowRes,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	ExpiresIn int    `json:"expiresInSeconds"`
}

// JobResponse wraps a single job with its links.
type JobResponse struct {
	Job   Job    `json:"job"`
	Links *Links `json:"links,omitempty"`
}

// JobListResponse wraps a page of jobs.
type JobListResponse struct {
	Jobs   []Job `json:"jobs"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// StatsResponse combines record counts and queue transport counts.
type StatsResponse struct {
	Jobs  map[string]int `json:"jobs"`
	Queue queue.Stats    `json:"queue"`
}

// WorkflowStatus summarizes worker pool state.
type WorkflowStatus struct {
	Running    bool        `json:"running"`
	Workers    int         `json:"workers"`
	ActiveJobs int         `json:"activeJobs"`
	LastError  string      `json:"lastError,omitempty"`
	LastJobID  string      `json:"lastJobId,omitempty"`
	Queue      queue.Stats `json:"queue"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	JobsDBPath     string             `json:"jobsDbPath"`
	LockFilePath   string             `json:"lockFilePath"`
	StorageBackend string             `json:"storageBackend"`
	QueueBackend   string             `json:"queueBackend"`
	Workflow       WorkflowStatus     `json:"workflow"`
	Jobs           map[string]int     `json:"jobs"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// DeleteResult reports what an administrative delete removed.
type DeleteResult struct {
	ID             string   `json:"id"`
	RemovedObjects []string `json:"removedObjects"`
}
