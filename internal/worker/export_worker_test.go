package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"spendinglog/internal/amqp"
	"spendinglog/internal/core"
	"spendinglog/internal/storage"
)

type fakeAppender struct {
	rows []core.Expense
	err  error
}

func (f *fakeAppender) Append(_ context.Context, e core.Expense) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.rows = append(f.rows, e)
	return "Expenses!A2:D2", nil
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", s, err)
	}
	return d
}

func setupWorkerTest(t *testing.T) (*ExportWorker, *storage.SQLiteRepository, *fakeAppender) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	appender := &fakeAppender{}
	return NewExportWorker(repo, appender, 10), repo, appender
}

func TestHandleExpenseChangedExportsAndMarks(t *testing.T) {
	w, repo, appender := setupWorkerTest(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, "Coffee", 3.50, mustDate(t, "2024-01-05"), []string{"food"})
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}

	msg := amqp.NewExpenseChangedMessage(created.ID)
	if err := w.HandleExpenseChanged(ctx, msg); err != nil {
		t.Fatalf("HandleExpenseChanged() error = %v", err)
	}

	if len(appender.rows) != 1 {
		t.Fatalf("appended %d rows, want 1", len(appender.rows))
	}
	if appender.rows[0].ItemName != "Coffee" {
		t.Errorf("appended item = %q, want Coffee", appender.rows[0].ItemName)
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after export = %d, want 0", len(pending))
	}
}

func TestHandleExpenseChangedAppendFailureMarksError(t *testing.T) {
	w, repo, appender := setupWorkerTest(t)
	ctx := context.Background()
	appender.err = errors.New("quota exceeded")

	created, err := repo.CreateExpense(ctx, "Lunch", 12.00, mustDate(t, "2024-01-06"), nil)
	if err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}

	if err := w.HandleExpenseChanged(ctx, amqp.NewExpenseChangedMessage(created.ID)); err == nil {
		t.Fatal("HandleExpenseChanged() should fail when the append fails")
	}

	// An errored expense must not be retried by the pending scan.
	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after failed export = %d, want 0", len(pending))
	}
}

func TestProcessPendingExpensesDrainsBacklog(t *testing.T) {
	w, repo, appender := setupWorkerTest(t)
	ctx := context.Background()

	for _, item := range []string{"Rent", "Groceries", "Bus"} {
		if _, err := repo.CreateExpense(ctx, item, 10, mustDate(t, "2024-02-01"), nil); err != nil {
			t.Fatalf("failed to create expense: %v", err)
		}
	}

	if err := w.ProcessPendingExpenses(ctx); err != nil {
		t.Fatalf("ProcessPendingExpenses() error = %v", err)
	}
	if len(appender.rows) != 3 {
		t.Errorf("appended %d rows, want 3", len(appender.rows))
	}

	// A second run finds nothing left.
	appender.rows = nil
	if err := w.ProcessPendingExpenses(ctx); err != nil {
		t.Fatalf("second ProcessPendingExpenses() error = %v", err)
	}
	if len(appender.rows) != 0 {
		t.Errorf("second run appended %d rows, want 0", len(appender.rows))
	}
}

func TestStartupExportCheckContinuesPastFailures(t *testing.T) {
	w, repo, appender := setupWorkerTest(t)
	ctx := context.Background()

	if _, err := repo.CreateExpense(ctx, "Tea", 2.00, mustDate(t, "2024-03-01"), nil); err != nil {
		t.Fatalf("failed to create expense: %v", err)
	}
	appender.err = errors.New("unreachable")

	if err := w.StartupExportCheck(ctx); err != nil {
		t.Fatalf("StartupExportCheck() error = %v", err)
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after errored startup check = %d, want 0", len(pending))
	}
}
