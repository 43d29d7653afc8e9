package store

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/abelbrown/discover/internal/model"
)

// SaveSourceStates persists the runtime health of each source so backoff and
// response averages survive restarts.
// Thread-safe: acquires write lock.
func (s *Store) SaveSourceStates(sources []model.SourceDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sources) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, src := range sources {
		_, err := sq.Insert("sources").
			Columns("url", "avg_response_ms", "failures", "backoff_until", "last_update", "item_count", "last_error").
			Values(src.URL, src.AvgResponse.Milliseconds(), src.Failures,
				nullTime(src.BackoffUntil), nullTime(src.LastUpdate), src.ItemCount, src.LastError).
			Suffix(`ON CONFLICT(url) DO UPDATE SET
				avg_response_ms = excluded.avg_response_ms,
				failures = excluded.failures,
				backoff_until = excluded.backoff_until,
				last_update = excluded.last_update,
				item_count = excluded.item_count,
				last_error = excluded.last_error`).
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("save source %s: %w", src.URL, err)
		}
	}
	return tx.Commit()
}

// LoadSourceStates copies persisted runtime health onto the given sources,
// matched by URL. Sources without a row are left untouched.
// Thread-safe: acquires read lock.
func (s *Store) LoadSourceStates(sources []model.SourceDescriptor) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := sq.Select("url", "avg_response_ms", "failures", "backoff_until", "last_update", "item_count", "last_error").
		From("sources").
		RunWith(s.db).
		Query()
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int, len(sources))
	for i := range sources {
		index[sources[i].URL] = i
	}

	for rows.Next() {
		var (
			url           string
			avgMs         int64
			failures      int
			backoff, last sql.NullTime
			itemCount     int
			lastErr       sql.NullString
		)
		if err := rows.Scan(&url, &avgMs, &failures, &backoff, &last, &itemCount, &lastErr); err != nil {
			return err
		}
		i, ok := index[url]
		if !ok {
			continue
		}
		src := &sources[i]
		src.AvgResponse = time.Duration(avgMs) * time.Millisecond
		src.Failures = failures
		src.BackoffUntil = backoff.Time
		src.LastUpdate = last.Time
		src.ItemCount = itemCount
		src.LastError = lastErr.String
	}
	return rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
