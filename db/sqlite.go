package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sonarid/apperr"
	"sonarid/models"
)

const songSchema = `
CREATE TABLE IF NOT EXISTS songs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	title             TEXT NOT NULL,
	artist            TEXT NOT NULL,
	album             TEXT NOT NULL DEFAULT '',
	file_path         TEXT NOT NULL UNIQUE,
	duration_seconds  REAL NOT NULL DEFAULT 0,
	file_size_bytes   INTEGER NOT NULL DEFAULT 0,
	date_added        DATETIME NOT NULL,
	fingerprint_count INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore is the MetadataStore implementation, grounded on the
// teacher's choice of mattn/go-sqlite3 as the metadata backend (its go.mod
// pulls go-sqlite3 for exactly this role). Plain database/sql rather than
// an ORM: the schema is a single narrow table and spec.md §4.5's
// operations map directly onto hand-written statements.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if absent) the metadata database at
// path and creates the songs table if it is missing. It does not check
// schema compatibility itself; engine.New runs CheckSchemaHeader before
// opening this store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}
	sqlDB.SetMaxOpenConns(1) // sqlite3 driver serializes writers anyway; avoids SQLITE_BUSY churn

	if _, err := sqlDB.Exec(songSchema); err != nil {
		sqlDB.Close()
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}

	return &SQLiteStore{db: sqlDB}, nil
}

func (s *SQLiteStore) AddSong(ctx context.Context, meta models.Song) (uint64, error) {
	if meta.DateAdded.IsZero() {
		meta.DateAdded = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (title, artist, album, file_path, duration_seconds, file_size_bytes, date_added, fingerprint_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Title, meta.Artist, meta.Album, meta.FilePath, meta.DurationSeconds, meta.FileSizeBytes, meta.DateAdded, meta.FingerprintCount,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, apperr.Newf(apperr.KindDuplicatePath, "file_path %q already registered", meta.FilePath)
		}
		return 0, apperr.Wrap(apperr.KindIOError, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIOError, err)
	}
	return uint64(id), nil
}

func (s *SQLiteStore) GetSong(ctx context.Context, songID uint64) (models.Song, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist, album, file_path, duration_seconds, file_size_bytes, date_added, fingerprint_count
		 FROM songs WHERE id = ?`, songID)

	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return models.Song{}, false, nil
	}
	if err != nil {
		return models.Song{}, false, apperr.Wrap(apperr.KindIOError, err)
	}
	return song, true, nil
}

func (s *SQLiteStore) GetSongByPath(ctx context.Context, path string) (models.Song, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist, album, file_path, duration_seconds, file_size_bytes, date_added, fingerprint_count
		 FROM songs WHERE file_path = ?`, path)

	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return models.Song{}, false, nil
	}
	if err != nil {
		return models.Song{}, false, apperr.Wrap(apperr.KindIOError, err)
	}
	return song, true, nil
}

func (s *SQLiteStore) RemoveSong(ctx context.Context, songID uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, songID)
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "song %d not found", songID)
	}
	return nil
}

func (s *SQLiteStore) SetFingerprintCount(ctx context.Context, songID uint64, count int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE songs SET fingerprint_count = ? WHERE id = ?`, count, songID)
	if err != nil {
		return apperr.Wrap(apperr.KindIOError, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int, search string) ([]models.Song, error) {
	query := `SELECT id, title, artist, album, file_path, duration_seconds, file_size_bytes, date_added, fingerprint_count FROM songs`
	args := []any{}
	if search != "" {
		query += ` WHERE LOWER(title) LIKE ? OR LOWER(artist) LIKE ?`
		needle := "%" + strings.ToLower(search) + "%"
		args = append(args, needle, needle)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIOError, err)
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIOError, err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.KindIOError, err)
	}
	return n, nil
}

// Exists reports whether songID has a live metadata row, without paying for
// a full row scan the way GetSong does.
func (s *SQLiteStore) Exists(ctx context.Context, songID uint64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM songs WHERE id = ?`, songID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindIOError, err)
	}
	return true, nil
}

func (s *SQLiteStore) TotalDuration(ctx context.Context) (float64, error) {
	var total float64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_seconds), 0) FROM songs`).Scan(&total); err != nil {
		return 0, apperr.Wrap(apperr.KindIOError, err)
	}
	return total, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (models.Song, error) {
	var song models.Song
	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.FilePath,
		&song.DurationSeconds, &song.FileSizeBytes, &song.DateAdded, &song.FingerprintCount)
	return song, err
}
