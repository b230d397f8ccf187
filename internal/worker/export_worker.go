package worker

import (
	"context"
	"fmt"
	"log/slog"

	"spendinglog/internal/amqp"
	"spendinglog/internal/core"
	"spendinglog/internal/sheets"
	"spendinglog/internal/storage"
)

// ExportWorker copies expenses from SQLite to the backup spreadsheet. It is
// driven by AMQP change messages, with a periodic pending scan as a backstop
// for lost messages.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	target    sheets.ExpenseAppender
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, target sheets.ExpenseAppender, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		target:    target,
		batchSize: batchSize,
	}
}

// HandleExpenseChanged processes a single change message from AMQP.
func (w *ExportWorker) HandleExpenseChanged(ctx context.Context, msg *amqp.ExpenseChangedMessage) error {
	slog.InfoContext(ctx, "Processing change message", "id", msg.ID)

	expense, err := w.storage.GetExpense(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	return w.exportExpense(ctx, expense.ID, expense)
}

// ProcessPendingExpenses exports any expenses still marked pending.
// This is the backstop for change messages that never arrived.
func (w *ExportWorker) ProcessPendingExpenses(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending expenses", "count", len(pending))

	for _, p := range pending {
		expense, err := w.storage.GetExpense(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get expense", "id", p.ID, "error", err)
			if err := w.storage.MarkExportError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", p.ID, "error", err)
			}
			continue
		}

		if err := w.exportExpense(ctx, p.ID, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", p.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck drains a larger pending batch once at worker startup,
// recovering from downtime while the web process kept accepting writes.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending expenses for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending expenses found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending expenses on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, p := range pending {
		expense, err := w.storage.GetExpense(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get expense for startup export",
				"id", p.ID, "error", err)
			if err := w.storage.MarkExportError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", p.ID, "error", err)
			}
			failed++
			continue
		}

		if err := w.exportExpense(ctx, p.ID, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense during startup",
				"id", p.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)

	return nil
}

func (w *ExportWorker) exportExpense(ctx context.Context, id int64, expense core.Expense) error {
	rowRef, err := w.target.Append(ctx, expense)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append expense to export target: %w", err)
	}

	if err := w.storage.MarkExported(ctx, id); err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}

	slog.InfoContext(ctx, "Expense exported", "id", id, "row", rowRef)
	return nil
}
