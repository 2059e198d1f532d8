package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scrobblerd/internal/core"
)

// EditStore persists user-applied metadata corrections keyed by the song
// fingerprint they were made against.
type EditStore struct {
	db *sql.DB
}

const editsSchema = `
CREATE TABLE IF NOT EXISTS edits (
	fingerprint  TEXT PRIMARY KEY,
	artist       TEXT NOT NULL DEFAULT '',
	track        TEXT NOT NULL DEFAULT '',
	album        TEXT NOT NULL DEFAULT '',
	album_artist TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP NOT NULL
);`

// OpenEditStore opens (creating if needed) the sqlite database at path.
func OpenEditStore(path string) (*EditStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open edits db: %w", err)
	}

	if _, err := db.Exec(editsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create edits schema: %w", err)
	}

	return &EditStore{db: db}, nil
}

func (es *EditStore) Close() error {
	return es.db.Close()
}

// Load returns the saved correction for a fingerprint, or nil when none
// exists.
func (es *EditStore) Load(ctx context.Context, fingerprint string) (*core.Edit, error) {
	row := es.db.QueryRowContext(ctx,
		`SELECT artist, track, album, album_artist FROM edits WHERE fingerprint = ?`,
		fingerprint)

	var edit core.Edit
	err := row.Scan(&edit.Artist, &edit.Track, &edit.Album, &edit.AlbumArtist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load edit: %w", err)
	}
	return &edit, nil
}

// Save stores a correction, replacing any previous one for the fingerprint.
func (es *EditStore) Save(ctx context.Context, fingerprint string, edit core.Edit) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO edits (fingerprint, artist, track, album, album_artist, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   artist = excluded.artist,
		   track = excluded.track,
		   album = excluded.album,
		   album_artist = excluded.album_artist,
		   updated_at = excluded.updated_at`,
		fingerprint, edit.Artist, edit.Track, edit.Album, edit.AlbumArtist, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save edit: %w", err)
	}
	return nil
}

// Delete removes a saved correction. Deleting a missing row is not an error.
func (es *EditStore) Delete(ctx context.Context, fingerprint string) error {
	if _, err := es.db.ExecContext(ctx, `DELETE FROM edits WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("delete edit: %w", err)
	}
	return nil
}

var _ core.EditStore = (*EditStore)(nil)
var _ core.ReplayGuard = (*ReplayGuard)(nil)
