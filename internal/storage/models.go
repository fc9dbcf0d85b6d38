package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is the metadata row for an ingested legal document. Content is
// the full extracted text; chunk vectors live in the vector store and are
// referenced back through VectorIDs.
type Document struct {
	ID        string
	Title     string
	Content   string
	Source    string // file path or URL the text came from
	DocType   string // "case_law", "statute", "contract", "uploaded", ...
	Tags      string // JSON array stored as text
	CreatedAt time.Time
	VectorIDs string // JSON array stored as text
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Report records a generated PDF summary so past exports can be listed
// and re-downloaded.
type Report struct {
	ID         string
	ClientName string
	FileName   string
	CreatedAt  time.Time
}
