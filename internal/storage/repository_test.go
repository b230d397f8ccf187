package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"spendinglog/internal/core"
)

// setupTestRepo creates a file-backed repository in a per-test temp dir and
// runs migrations against it.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateExpenseAndQueryByDateRange(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, "Coffee", 3.50, core.NewDate(2024, 1, 5), []string{"food", "drink"})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}
	if created.ID == 0 {
		t.Error("Expense should have a valid ID")
	}
	if len(created.Labels) != 2 {
		t.Fatalf("Expected 2 labels, got %d", len(created.Labels))
	}

	results, err := repo.FindByDateRange(ctx, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("Failed to query expenses: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ItemName != "Coffee" {
		t.Errorf("ItemName = %q, want %q", got.ItemName, "Coffee")
	}
	if got.Price != 3.50 {
		t.Errorf("Price = %v, want 3.50", got.Price)
	}
	if got.Date.String() != "2024-01-05" {
		t.Errorf("Date = %q, want %q", got.Date.String(), "2024-01-05")
	}
	if !got.HasLabel("food") || !got.HasLabel("drink") {
		t.Errorf("Labels = %v, want {food, drink}", got.LabelNames())
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	created, err := first.CreateExpense(ctx, "Coffee", 3.50, core.NewDate(2024, 1, 5), []string{"food"})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Failed to close repository: %v", err)
	}

	// Reopening runs migrations again on the live pool; an up-to-date
	// schema must be a no-op and existing rows must survive.
	second, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen repository: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	got, err := second.GetExpense(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get expense after reopen: %v", err)
	}
	if got.ItemName != "Coffee" || !got.HasLabel("food") {
		t.Errorf("Expense after reopen = %+v, want Coffee with label food", got)
	}
}

func TestResolveLabelsIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, err := repo.ResolveLabels(ctx, []string{"food", "drink"})
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	second, err := repo.ResolveLabels(ctx, []string{"food", "drink"})
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Expected 2 labels per resolve, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Label %q resolved to different rows: %d vs %d", first[i].Name, first[i].ID, second[i].ID)
		}
	}

	catalogue, err := repo.ListLabels(ctx)
	if err != nil {
		t.Fatalf("Failed to list labels: %v", err)
	}
	if len(catalogue) != 2 {
		t.Errorf("Expected 2 catalogue labels, got %d", len(catalogue))
	}
}

func TestReplaceLabelsSupersedesPriorSet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, "Lunch", 12, core.NewDate(2024, 2, 1), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	replaced, err := repo.ReplaceLabels(ctx, created.ID, []string{"b", "c"})
	if err != nil {
		t.Fatalf("Failed to replace labels: %v", err)
	}
	if len(replaced.Labels) != 2 || !replaced.HasLabel("b") || !replaced.HasLabel("c") {
		t.Errorf("Labels after replace = %v, want {b, c}", replaced.LabelNames())
	}
	if replaced.HasLabel("a") {
		t.Error("Label \"a\" should have been detached")
	}

	// The detached label row survives in the catalogue
	catalogue, err := repo.ListLabels(ctx)
	if err != nil {
		t.Fatalf("Failed to list labels: %v", err)
	}
	names := make(map[string]bool)
	for _, l := range catalogue {
		names[l.Name] = true
	}
	if !names["a"] {
		t.Error("Detached label \"a\" should still exist in the catalogue")
	}
	if len(catalogue) != 3 {
		t.Errorf("Expected 3 catalogue labels, got %d", len(catalogue))
	}

	// The reused label keeps its identity across the replace
	got, err := repo.GetExpense(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get expense: %v", err)
	}
	if len(got.Labels) != 2 {
		t.Errorf("Expected 2 labels on reload, got %d", len(got.Labels))
	}
}

func TestReplaceLabelsMissingExpense(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.ReplaceLabels(context.Background(), 9999, []string{"x"})
	if !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("Expected ErrExpenseNotFound, got %v", err)
	}
}

func TestFindByDateRangeInclusiveBounds(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	dates := []core.Date{
		core.NewDate(2024, 3, 9),  // one day before start: excluded
		core.NewDate(2024, 3, 10), // start bound: included
		core.NewDate(2024, 3, 15), // inside: included
		core.NewDate(2024, 3, 20), // end bound: included
		core.NewDate(2024, 3, 21), // one day after end: excluded
	}
	for i, d := range dates {
		if _, err := repo.CreateExpense(ctx, "Item", float64(i+1), d, nil); err != nil {
			t.Fatalf("Failed to create expense %d: %v", i, err)
		}
	}

	results, err := repo.FindByDateRange(ctx, core.NewDate(2024, 3, 10), core.NewDate(2024, 3, 20))
	if err != nil {
		t.Fatalf("Failed to query expenses: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Date.String() != "2024-03-10" || results[2].Date.String() != "2024-03-20" {
		t.Errorf("Bounds not inclusive: first=%s last=%s", results[0].Date, results[2].Date)
	}
}

func TestFindByDateRangeInvertedRangeIsEmpty(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateExpense(ctx, "Item", 1, core.NewDate(2024, 4, 15), nil); err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	results, err := repo.FindByDateRange(ctx, core.NewDate(2024, 4, 30), core.NewDate(2024, 4, 1))
	if err != nil {
		t.Fatalf("Inverted range should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Inverted range should be empty, got %d results", len(results))
	}
}

func TestFindByDateRangeOrdering(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// Insert out of date order; same-date rows tie-break on id
	if _, err := repo.CreateExpense(ctx, "Second", 2, core.NewDate(2024, 5, 20), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateExpense(ctx, "First", 1, core.NewDate(2024, 5, 10), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateExpense(ctx, "Third", 3, core.NewDate(2024, 5, 20), nil); err != nil {
		t.Fatal(err)
	}

	results, err := repo.FindByDateRange(ctx, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 31))
	if err != nil {
		t.Fatalf("Failed to query expenses: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	want := []string{"First", "Second", "Third"}
	for i, w := range want {
		if results[i].ItemName != w {
			t.Errorf("results[%d].ItemName = %q, want %q", i, results[i].ItemName, w)
		}
	}
}

func TestConcurrentLabelResolution(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	const callers = 8
	resolved := make([][]core.Label, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolved[i], errs[i] = repo.ResolveLabels(ctx, []string{"shared"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if len(resolved[i]) != 1 {
			t.Fatalf("Caller %d resolved %d labels, want 1", i, len(resolved[i]))
		}
		if resolved[i][0].ID != resolved[0][0].ID {
			t.Errorf("Caller %d got label id %d, caller 0 got %d", i, resolved[i][0].ID, resolved[0][0].ID)
		}
	}

	catalogue, err := repo.ListLabels(ctx)
	if err != nil {
		t.Fatalf("Failed to list labels: %v", err)
	}
	if len(catalogue) != 1 {
		t.Errorf("Expected exactly 1 label row, got %d", len(catalogue))
	}
}

func TestReplaceLabelsAtomicUnderConcurrentReads(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, "Dinner", 30, core.NewDate(2024, 7, 1), []string{"food", "out"})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	const readers = 4
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := repo.GetExpense(ctx, created.ID)
				if err != nil {
					t.Errorf("Read failed during replace: %v", err)
					return
				}
				// Every committed state carries exactly two labels; a reader
				// must never observe the detach without the re-attach.
				if len(got.Labels) != 2 {
					t.Errorf("Reader observed partial label set: %v", got.LabelNames())
					return
				}
			}
		}()
	}

	sets := [][]string{{"food", "out"}, {"travel", "work"}}
	for i := 0; i < 30; i++ {
		if _, err := repo.ReplaceLabels(ctx, created.ID, sets[i%2]); err != nil {
			t.Errorf("Replace %d failed: %v", i, err)
			break
		}
	}
	close(stop)
	wg.Wait()
}

func TestExportBookkeeping(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateExpense(ctx, "Groceries", 42.10, core.NewDate(2024, 6, 1), []string{"food"})
	if err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	pending, err := repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to get pending exports: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("Expected 1 pending export for id %d, got %v", created.ID, pending)
	}

	if err := repo.MarkExported(ctx, created.ID); err != nil {
		t.Fatalf("Failed to mark exported: %v", err)
	}
	pending, err = repo.GetPendingExportExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to get pending exports: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending exports after mark, got %d", len(pending))
	}
}

func TestGetExpenseNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetExpense(context.Background(), 123)
	if !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("Expected ErrExpenseNotFound, got %v", err)
	}
}
