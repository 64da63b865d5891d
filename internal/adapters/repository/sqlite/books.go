package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/readq/internal/adapters/repository"
	model "github.com/okian/readq/internal/domain/model"
)

// Fixed-width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const bookColumns = `id, user_id, title, original_title, author, status, position,
	type, availability, priority, year, book_class, category, score, rating,
	date_read, motivation, cover_url, created_at, updated_at`

type sqlTx struct {
	tx       *sql.Tx
	writable bool
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return model.IntPtr(int(n.Int64))
}

func scanBook(row scanner) (model.Book, error) {
	var (
		b                model.Book
		status           string
		position, year   sql.NullInt64
		rating           sql.NullInt64
		created, updated string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Title, &b.OriginalTitle, &b.Author, &status, &position,
		&b.Type, &b.Availability, &b.Priority, &year, &b.Class, &b.Category, &b.Score, &rating,
		&b.DateRead, &b.Motivation, &b.CoverURL, &created, &updated)
	if err != nil {
		return model.Book{}, err
	}
	b.Status = model.Status(status)
	b.Rank = intPtr(position)
	b.Year = intPtr(year)
	b.Rating = intPtr(rating)
	if b.CreatedAt, err = parseTime(created); err != nil {
		return model.Book{}, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Book{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return b, nil
}

func (t *sqlTx) queryBooks(ctx context.Context, query string, args ...any) ([]model.Book, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *sqlTx) GetBook(ctx context.Context, id string) (model.Book, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Book{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return model.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (t *sqlTx) ListBooks(ctx context.Context, userID string) ([]model.Book, error) {
	books, err := t.queryBooks(ctx, `SELECT `+bookColumns+` FROM books
		WHERE user_id = ?
		ORDER BY position IS NULL, position, created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (t *sqlTx) ListRanked(ctx context.Context, userID string) ([]model.Book, error) {
	books, err := t.queryBooks(ctx, `SELECT `+bookColumns+` FROM books
		WHERE user_id = ? AND position IS NOT NULL AND status != ?
		ORDER BY position, created_at, id`, userID, string(model.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("list ranked: %w", err)
	}
	return books, nil
}

func (t *sqlTx) BookAtRank(ctx context.Context, userID string, rank int) (model.Book, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books
		WHERE user_id = ? AND position = ? AND status != ?
		ORDER BY created_at, id LIMIT 1`, userID, rank, string(model.StatusFinished))
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Book{}, fmt.Errorf("%w: rank %d", repository.ErrNotFound, rank)
	}
	if err != nil {
		return model.Book{}, fmt.Errorf("book at rank: %w", err)
	}
	return b, nil
}

func (t *sqlTx) InsertBook(ctx context.Context, b model.Book) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Title, b.OriginalTitle, b.Author, string(b.Status), nullInt(b.Rank),
		b.Type, b.Availability, b.Priority, nullInt(b.Year), b.Class, b.Category, b.Score, nullInt(b.Rating),
		b.DateRead, b.Motivation, b.CoverURL, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", repository.ErrAlreadyExists, b.ID)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateBook(ctx context.Context, b model.Book) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE books SET
		title = ?, original_title = ?, author = ?, status = ?, position = ?,
		type = ?, availability = ?, priority = ?, year = ?, book_class = ?, category = ?,
		score = ?, rating = ?, date_read = ?, motivation = ?, cover_url = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.OriginalTitle, b.Author, string(b.Status), nullInt(b.Rank),
		b.Type, b.Availability, b.Priority, nullInt(b.Year), b.Class, b.Category,
		b.Score, nullInt(b.Rating), b.DateRead, b.Motivation, b.CoverURL, formatTime(b.UpdatedAt),
		b.ID)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return expectRow(res, b.ID)
}

func (t *sqlTx) DeleteBook(ctx context.Context, id string) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return expectRow(res, id)
}

func (t *sqlTx) ApplyRanks(ctx context.Context, userID string, changes []model.RankChange) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	if len(changes) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `UPDATE books SET position = ? WHERE id = ? AND user_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare rank update: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		var pos sql.NullInt64
		if c.To != 0 {
			pos = sql.NullInt64{Int64: int64(c.To), Valid: true}
		}
		res, err := stmt.ExecContext(ctx, pos, c.BookID, userID)
		if err != nil {
			return fmt.Errorf("update rank of %s: %w", c.BookID, err)
		}
		if err := expectRow(res, c.BookID); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) UpdateScores(ctx context.Context, userID string, scores map[string]float64) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	if len(scores) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `UPDATE books SET score = ? WHERE id = ? AND user_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare score update: %w", err)
	}
	defer stmt.Close()

	for id, score := range scores {
		res, err := stmt.ExecContext(ctx, score, id, userID)
		if err != nil {
			return fmt.Errorf("update score of %s: %w", id, err)
		}
		if err := expectRow(res, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) GetFormula(ctx context.Context, userID string) (*model.FormulaConfig, error) {
	var raw string
	err := t.tx.QueryRowContext(ctx, `SELECT config FROM formulas WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get formula: %w", err)
	}
	var cfg model.FormulaConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode formula: %w", err)
	}
	return &cfg, nil
}

func (t *sqlTx) PutFormula(ctx context.Context, userID string, cfg model.FormulaConfig) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode formula: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO formulas (user_id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		userID, string(raw), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("put formula: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteFormula(ctx context.Context, userID string) error {
	if !t.writable {
		return repository.ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM formulas WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete formula: %w", err)
	}
	return nil
}

func (t *sqlTx) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT user_id FROM books UNION SELECT user_id FROM formulas ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return nil
}
