package store

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ShelfEntry is one work the user has saved.
type ShelfEntry struct {
	Name    string
	Author  string
	AddedAt time.Time
}

// AddToBookshelf saves a work. Adding an existing work is a no-op.
// Thread-safe: acquires write lock.
func (s *Store) AddToBookshelf(name, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nk := normalizeKey(name)
	if nk == "" {
		return fmt.Errorf("bookshelf: empty name")
	}
	_, err := sq.Insert("bookshelf").
		Columns("name_key", "author_key", "name", "author", "added_at").
		Values(nk, normalizeKey(author), name, author, s.now()).
		Options("OR IGNORE").
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("bookshelf add %q: %w", name, err)
	}
	return nil
}

// RemoveFromBookshelf deletes a work. Returns ErrNotFound if it was not saved.
// Thread-safe: acquires write lock.
func (s *Store) RemoveFromBookshelf(name, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := sq.Delete("bookshelf").
		Where(sq.Eq{"name_key": normalizeKey(name), "author_key": normalizeKey(author)}).
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("bookshelf remove %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Contains reports whether a work with this name and author is saved.
// Case and whitespace differences are ignored. Errors read as false.
// Thread-safe: acquires read lock.
func (s *Store) Contains(name, author string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := sq.Select("COUNT(*)").
		From("bookshelf").
		Where(sq.Eq{"name_key": normalizeKey(name), "author_key": normalizeKey(author)}).
		RunWith(s.db).
		QueryRow().
		Scan(&n)
	return err == nil && n > 0
}

// Bookshelf lists saved works, newest first.
// Thread-safe: acquires read lock.
func (s *Store) Bookshelf() ([]ShelfEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := sq.Select("name", "author", "added_at").
		From("bookshelf").
		OrderBy("added_at DESC", "name").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ShelfEntry
	for rows.Next() {
		var e ShelfEntry
		if err := rows.Scan(&e.Name, &e.Author, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
