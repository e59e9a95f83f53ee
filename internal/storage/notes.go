package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const noteColumns = `id, document_ref, page_number, title, content, created_at, updated_at`

// CreateNote stores a new note and returns it with its id and timestamps.
func (s *Store) CreateNote(documentRef string, page int, title, content string) (Note, error) {
	switch {
	case strings.TrimSpace(documentRef) == "":
		return Note{}, fmt.Errorf("document is required")
	case page < 1:
		return Note{}, fmt.Errorf("page must be positive, got %d", page)
	case strings.TrimSpace(title) == "":
		return Note{}, fmt.Errorf("title is required")
	}

	n := Note{
		ID:          uuid.New().String(),
		DocumentRef: documentRef,
		PageNumber:  page,
		Title:       title,
		Content:     content,
	}
	ts := formatTime(s.now())
	if _, err := s.db.Exec(`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.DocumentRef, n.PageNumber, n.Title, n.Content, ts, ts,
	); err != nil {
		return Note{}, fmt.Errorf("inserting note: %w", err)
	}
	n.CreatedAt, _ = parseTime(ts)
	n.UpdatedAt = n.CreatedAt
	return n, nil
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var createdAt, updatedAt string
	if err := row.Scan(&n.ID, &n.DocumentRef, &n.PageNumber, &n.Title, &n.Content, &createdAt, &updatedAt); err != nil {
		return Note{}, err
	}
	var err error
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return Note{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Note{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return n, nil
}

func (s *Store) GetNote(id string) (Note, error) {
	n, err := scanNote(s.db.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Note{}, ErrNotFound
	}
	return n, err
}

// ListNotes returns the notes of documentRef ordered by page, newest first
// within a page. A page of 0 lists every page.
func (s *Store) ListNotes(documentRef string, page int) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE document_ref = ?`
	args := []any{documentRef}
	if page > 0 {
		query += ` AND page_number = ?`
		args = append(args, page)
	}
	query += ` ORDER BY page_number ASC, created_at DESC, rowid DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *Store) DeleteNote(id string) error {
	res, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// NotesSummary returns per-document note counts with the most recent note's
// date and title, most recently active documents first.
func (s *Store) NotesSummary() ([]NoteSummary, error) {
	rows, err := s.db.Query(`
		SELECT n.document_ref, c.cnt, n.created_at, n.title
		FROM notes n
		JOIN (
			SELECT document_ref, COUNT(*) AS cnt, MAX(rowid) AS latest
			FROM notes GROUP BY document_ref
		) c ON c.latest = n.rowid
		ORDER BY n.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []NoteSummary{}
	for rows.Next() {
		var ns NoteSummary
		var latest string
		if err := rows.Scan(&ns.DocumentRef, &ns.Count, &latest, &ns.LatestTitle); err != nil {
			return nil, err
		}
		if ns.LatestAt, err = parseTime(latest); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		summaries = append(summaries, ns)
	}
	return summaries, rows.Err()
}
