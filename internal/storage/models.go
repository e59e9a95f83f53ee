package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Note is a saved chat transcript. Notes are immutable once created.
type Note struct {
	ID          string    `json:"id"`
	DocumentRef string    `json:"pdf_filename"`
	PageNumber  int       `json:"page_number"`
	Title       string    `json:"title"`
	Content     string    `json:"chat_content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NoteSummary aggregates the notes of one document.
type NoteSummary struct {
	DocumentRef string    `json:"pdf_filename"`
	Count       int       `json:"note_count"`
	LatestAt    time.Time `json:"latest_note_date"`
	LatestTitle string    `json:"latest_note_title"`
}

// Progress is the last page read in a document.
type Progress struct {
	DocumentRef string    `json:"pdf_filename"`
	LastPage    int       `json:"last_page"`
	TotalPages  int       `json:"total_pages"`
	UpdatedAt   time.Time `json:"last_updated"`
}

// PageText caches the extracted text of one page.
type PageText struct {
	DocumentRef string
	PageNumber  int
	Text        string
	ExtractedAt time.Time
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
