package storage

import (
	"database/sql"
	"fmt"
)

// SaveProgress records the last page read in documentRef.
func (s *Store) SaveProgress(documentRef string, lastPage, totalPages int) error {
	if documentRef == "" {
		return fmt.Errorf("document is required")
	}
	if lastPage < 1 || (totalPages > 0 && lastPage > totalPages) {
		return fmt.Errorf("page %d out of range 1..%d", lastPage, totalPages)
	}
	_, err := s.db.Exec(`
		INSERT INTO reading_progress (document_ref, last_page, total_pages, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(document_ref) DO UPDATE SET
			last_page = excluded.last_page,
			total_pages = excluded.total_pages,
			updated_at = excluded.updated_at`,
		documentRef, lastPage, totalPages, formatTime(s.now()),
	)
	return err
}

func scanProgress(row rowScanner) (Progress, error) {
	var p Progress
	var updatedAt string
	if err := row.Scan(&p.DocumentRef, &p.LastPage, &p.TotalPages, &updatedAt); err != nil {
		return Progress{}, err
	}
	var err error
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Progress{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

func (s *Store) GetProgress(documentRef string) (Progress, error) {
	p, err := scanProgress(s.db.QueryRow(
		`SELECT document_ref, last_page, total_pages, updated_at FROM reading_progress WHERE document_ref = ?`, documentRef))
	if err == sql.ErrNoRows {
		return Progress{}, ErrNotFound
	}
	return p, err
}

// ListProgress returns progress for every document, most recently read first.
func (s *Store) ListProgress() ([]Progress, error) {
	rows, err := s.db.Query(`SELECT document_ref, last_page, total_pages, updated_at FROM reading_progress ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := []Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, p)
	}
	return all, rows.Err()
}
