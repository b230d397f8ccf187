package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"spendinglog/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows a single writer; a one-connection pool serializes
	// transactions instead of surfacing SQLITE_BUSY to concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateExpense persists a new expense together with its resolved label set.
// The row insert, label resolution and associations are a single transaction:
// either the whole sequence commits or none of it does.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, itemName string, price float64, date core.Date, labelNames []string) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (item_name, price, date) VALUES (?, ?, ?)`,
		itemName, price, date.String(),
	)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}

	labels, err := resolveLabels(ctx, tx, labelNames)
	if err != nil {
		return core.Expense{}, err
	}

	if err := associateLabels(ctx, tx, id, labels); err != nil {
		return core.Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit expense: %w", err)
	}

	expense := core.Expense{
		ID:       id,
		ItemName: itemName,
		Price:    price,
		Date:     date,
		Labels:   labels,
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", expense.ID,
		"item_name", expense.ItemName,
		"price", expense.Price,
		"date", expense.Date.String(),
		"labels", len(expense.Labels))

	return expense, nil
}

// ReplaceLabels swaps the full label set of an expense for the one named by
// labelNames. The clear and re-associate run in one transaction, so a
// concurrent reader sees either the old set or the new set, never an empty
// intermediate state. Detached labels are kept in the catalogue.
func (r *SQLiteRepository) ReplaceLabels(ctx context.Context, expenseID int64, labelNames []string) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	expense, err := scanExpense(ctx, tx, expenseID)
	if err != nil {
		return core.Expense{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expense_labels WHERE expense_id = ?`, expenseID,
	); err != nil {
		return core.Expense{}, fmt.Errorf("clear labels for expense %d: %w", expenseID, err)
	}

	labels, err := resolveLabels(ctx, tx, labelNames)
	if err != nil {
		return core.Expense{}, err
	}

	if err := associateLabels(ctx, tx, expenseID, labels); err != nil {
		return core.Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit label replace: %w", err)
	}

	expense.Labels = labels

	slog.InfoContext(ctx, "Expense labels replaced",
		"id", expenseID,
		"labels", len(labels))

	return expense, nil
}

// ResolveLabels resolves a set of label names outside a surrounding write,
// creating any that do not yet exist. Used where only the labels are needed.
func (r *SQLiteRepository) ResolveLabels(ctx context.Context, labelNames []string) ([]core.Label, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	labels, err := resolveLabels(ctx, tx, labelNames)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit label resolve: %w", err)
	}
	return labels, nil
}

// resolveLabels looks up each name by exact match and lazily creates missing
// rows. A concurrent creator of the same name is absorbed: the insert uses
// ON CONFLICT DO NOTHING and the following re-read picks up whichever row won
// the unique-index race.
func resolveLabels(ctx context.Context, q querier, labelNames []string) ([]core.Label, error) {
	labels := make([]core.Label, 0, len(labelNames))
	for _, name := range labelNames {
		label, err := lookupLabel(ctx, q, name)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO labels (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
			); err != nil {
				return nil, fmt.Errorf("insert label %q: %w", name, err)
			}
			label, err = lookupLabel(ctx, q, name)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("resolve label %q: %w", name, core.ErrLabelConflict)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("lookup label %q: %w", name, err)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func lookupLabel(ctx context.Context, q querier, name string) (core.Label, error) {
	var l core.Label
	err := q.QueryRowContext(ctx,
		`SELECT id, name FROM labels WHERE name = ?`, name,
	).Scan(&l.ID, &l.Name)
	return l, err
}

func associateLabels(ctx context.Context, q querier, expenseID int64, labels []core.Label) error {
	for _, l := range labels {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO expense_labels (expense_id, label_id) VALUES (?, ?)`,
			expenseID, l.ID,
		); err != nil {
			return fmt.Errorf("associate label %q with expense %d: %w", l.Name, expenseID, err)
		}
	}
	return nil
}

// GetExpense retrieves a single expense by id with its label set populated.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	expense, err := scanExpense(ctx, r.db, id)
	if err != nil {
		return core.Expense{}, err
	}

	expense.Labels, err = labelsForExpense(ctx, r.db, id)
	if err != nil {
		return core.Expense{}, err
	}
	return expense, nil
}

func scanExpense(ctx context.Context, q querier, id int64) (core.Expense, error) {
	var (
		e       core.Expense
		dateStr string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, item_name, price, date FROM expenses WHERE id = ?`, id,
	).Scan(&e.ID, &e.ItemName, &e.Price, &dateStr)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrExpenseNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}

	e.Date, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	return e, nil
}

func labelsForExpense(ctx context.Context, q querier, expenseID int64) ([]core.Label, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.name
		FROM labels l
		INNER JOIN expense_labels el ON l.id = el.label_id
		WHERE el.expense_id = ?
		ORDER BY l.name
	`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("labels for expense %d: %w", expenseID, err)
	}
	defer rows.Close()

	var labels []core.Label
	for rows.Next() {
		var l core.Label
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// FindByDateRange returns all expenses whose date lies in [start, end], both
// bounds inclusive, with label sets populated. Results are ordered by date
// ascending with id as tiebreak. An inverted range yields an empty result.
func (r *SQLiteRepository) FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_name, price, date
		FROM expenses
		WHERE date >= ? AND date <= ?
		ORDER BY date, id
	`, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("query expenses by date range: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e       core.Expense
			dateStr string
		)
		if err := rows.Scan(&e.ID, &e.ItemName, &e.Price, &dateStr); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date, err = core.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	for i := range expenses {
		expenses[i].Labels, err = labelsForExpense(ctx, r.db, expenses[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// ListLabels returns the full label catalogue ordered by name.
func (r *SQLiteRepository) ListLabels(ctx context.Context) ([]core.Label, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	var labels []core.Label
	for rows.Next() {
		var l core.Label
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// PendingExportExpense is the minimal record the export worker needs.
type PendingExportExpense struct {
	ID int64
}

// GetPendingExportExpenses returns expenses not yet exported to the backup target.
func (r *SQLiteRepository) GetPendingExportExpenses(ctx context.Context, limit int) ([]PendingExportExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM expenses
		WHERE export_status = 'pending'
		ORDER BY id
		LIMIT ?
	`, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	defer rows.Close()

	var pending []PendingExportExpense
	for rows.Next() {
		var p PendingExportExpense
		if err := rows.Scan(&p.ID); err != nil {
			return nil, fmt.Errorf("scan pending export expense: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkExported marks an expense as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = 'exported' WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as exported", "id", id)
	return nil
}

// MarkExportError marks an expense as having failed to export.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_status = 'error' WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("mark expense export error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with export error", "id", id)
	return nil
}
