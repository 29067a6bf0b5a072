package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// utterancesPerInsert keeps multi-row inserts below SQLite's bound
// parameter limit.
const utterancesPerInsert = 500

const schema = `
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA journal_size_limit = 200000000;
	PRAGMA synchronous        = NORMAL;
	PRAGMA foreign_keys       = ON;
	PRAGMA temp_store         = MEMORY;
	PRAGMA cache_size         = -16000;

	create table if not exists notes (
		id text primary key not null,
		owner text not null,
		title text not null,
		body text not null,
		blake3_hash text not null,
		language text not null default '',
		source text not null,
		created_at timestamp not null,
		unique (owner, blake3_hash)
	);

	create table if not exists utterances (
		note_id text not null references notes (id) on delete cascade,
		seq integer not null,
		speaker text not null,
		start_ms integer not null,
		end_ms integer not null,
		text text not null,
		primary key (note_id, seq)
	);

	create index if not exists notes_owner_created on notes (owner, created_at);`

type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(db *sql.DB) SQLiteRepo {
	return SQLiteRepo{db}
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating notes schema: %w", err)
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

const noteColumns = "id, owner, title, body, blake3_hash, language, source, created_at"

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Owner, &n.Title, &n.Body, &n.Blake3Hash, &n.Language, &n.Source, &n.CreatedAt)
	return n, err
}

func (r SQLiteRepo) GetNote(ctx context.Context, id string) (Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx, "select "+noteColumns+" from notes where id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("get note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note %s: %w", id, err)
	}
	return n, nil
}

func (r SQLiteRepo) GetNoteByHash(ctx context.Context, owner string, blake3Hash string) (Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx,
		"select "+noteColumns+" from notes where owner = ? and blake3_hash = ?",
		owner, blake3Hash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("get note by hash: %w", ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note by hash: %w", err)
	}
	return n, nil
}

// ListNotes returns the owner's notes, newest first.
func (r SQLiteRepo) ListNotes(ctx context.Context, owner string) ([]Note, error) {
	return r.queryNotes(ctx,
		"select "+noteColumns+" from notes where owner = ? order by created_at desc, rowid desc",
		owner,
	)
}

// NoteContext returns every note of owner in creation order, for use as chat
// context.
func (r SQLiteRepo) NoteContext(ctx context.Context, owner string) ([]Note, error) {
	return r.queryNotes(ctx,
		"select "+noteColumns+" from notes where owner = ? order by created_at, rowid",
		owner,
	)
}

func (r SQLiteRepo) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var res []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("listing notes: scan: %w", err)
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return res, nil
}

func (r SQLiteRepo) Utterances(ctx context.Context, noteID string) ([]StoredUtterance, error) {
	rows, err := r.db.QueryContext(ctx, `
		select note_id, seq, speaker, start_ms, end_ms, text
		from utterances
		where note_id = ?
		order by seq`, noteID)
	if err != nil {
		return nil, fmt.Errorf("listing utterances: %w", err)
	}
	defer rows.Close()

	var res []StoredUtterance
	for rows.Next() {
		var u StoredUtterance
		if err := rows.Scan(&u.NoteID, &u.Seq, &u.Speaker, &u.StartMs, &u.EndMs, &u.Text); err != nil {
			return nil, fmt.Errorf("listing utterances: scan: %w", err)
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing utterances: %w", err)
	}
	return res, nil
}

// CreateNote stores n and its utterances in one transaction. If the owner
// already has a note for the same audio, that note is returned with
// created set to false.
func (r SQLiteRepo) CreateNote(ctx context.Context, n Note, us []StoredUtterance) (stored Note, created bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, false, fmt.Errorf("creating note: begin trx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		"insert into notes ("+noteColumns+") values (?, ?, ?, ?, ?, ?, ?, ?)",
		n.ID, n.Owner, n.Title, n.Body, n.Blake3Hash, n.Language, n.Source, n.CreatedAt,
	)
	if isUniqueConstraintErr(err) {
		// The lookup below needs a connection of its own.
		if rbErr := tx.Rollback(); rbErr != nil {
			return Note{}, false, fmt.Errorf("creating note: rollback: %w", rbErr)
		}
		existing, err := r.GetNoteByHash(ctx, n.Owner, n.Blake3Hash)
		return existing, false, err
	}
	if err != nil {
		return Note{}, false, fmt.Errorf("creating note: %w", err)
	}

	for len(us) > 0 {
		batch := us[:min(len(us), utterancesPerInsert)]
		us = us[len(batch):]
		if err = insertUtterances(ctx, tx, n.ID, batch); err != nil {
			return Note{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Note{}, false, fmt.Errorf("creating note: commiting: %w", err)
	}
	return n, true, nil
}

func insertUtterances(ctx context.Context, tx *sql.Tx, noteID string, us []StoredUtterance) error {
	var b strings.Builder
	b.WriteString(`insert into utterances (
		note_id,
		seq,
		speaker,
		start_ms,
		end_ms,
		text) values `)
	args := make([]any, 0, 6*len(us))
	for n, u := range us {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, noteID, u.Seq, u.Speaker, u.StartMs, u.EndMs, u.Text)
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("inserting utterances: %w", err)
	}
	return nil
}

// DeleteNote removes a note and its utterances.
func (r SQLiteRepo) DeleteNote(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "delete from notes where id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deleting note %s: %w", id, ErrNotFound)
	}
	return nil
}
