package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"spendinglog/internal/amqp"
	"spendinglog/internal/core"
	"spendinglog/internal/storage"
)

// ExpenseService exposes the expense operations consumed by the HTTP layer.
// It validates raw text inputs, delegates persistence to the SQLite
// repository, and publishes change messages for the export worker.
type ExpenseService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewExpenseService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *ExpenseService {
	return &ExpenseService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// CreateExpense validates the raw form inputs and persists a new expense with
// its label set. All-or-nothing: a validation failure performs no write.
func (s *ExpenseService) CreateExpense(ctx context.Context, itemName, priceText, dateText, rawLabels string) (core.Expense, error) {
	itemName = strings.TrimSpace(itemName)

	price, err := core.ParsePrice(priceText)
	if err != nil {
		return core.Expense{}, err
	}

	date, err := core.ParseDate(dateText)
	if err != nil {
		return core.Expense{}, &core.ValidationError{Field: "date", Reason: "must be a YYYY-MM-DD date"}
	}

	candidate := core.Expense{ItemName: itemName, Price: price, Date: date}
	if err := candidate.Validate(); err != nil {
		return core.Expense{}, err
	}

	expense, err := s.storage.CreateExpense(ctx, itemName, price, date, core.SplitLabels(rawLabels))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.publishChanged(ctx, expense.ID)

	return expense, nil
}

// ReplaceLabels swaps the full label set of an existing expense for the set
// named in rawLabels.
func (s *ExpenseService) ReplaceLabels(ctx context.Context, expenseID int64, rawLabels string) (core.Expense, error) {
	expense, err := s.storage.ReplaceLabels(ctx, expenseID, core.SplitLabels(rawLabels))
	if err != nil {
		return core.Expense{}, err
	}

	s.publishChanged(ctx, expense.ID)

	return expense, nil
}

// FindByDateRange returns all expenses dated within [start, end] inclusive,
// ordered by date then id. An inverted range yields an empty result.
func (s *ExpenseService) FindByDateRange(ctx context.Context, startText, endText string) ([]core.Expense, error) {
	start, err := core.ParseDate(startText)
	if err != nil {
		return nil, &core.ValidationError{Field: "start", Reason: "must be a YYYY-MM-DD date"}
	}
	end, err := core.ParseDate(endText)
	if err != nil {
		return nil, &core.ValidationError{Field: "end", Reason: "must be a YYYY-MM-DD date"}
	}

	expenses, err := s.storage.FindByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	return expenses, nil
}

// ListLabels returns the full label catalogue.
func (s *ExpenseService) ListLabels(ctx context.Context) ([]core.Label, error) {
	return s.storage.ListLabels(ctx)
}

// GetExpense returns a single expense with labels populated.
func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return s.storage.GetExpense(ctx, id)
}

// publishChanged emits a change message for the export worker. Publish
// failures never fail the request: the expense is already committed locally
// and the worker's pending scan picks it up later.
func (s *ExpenseService) publishChanged(ctx context.Context, id int64) {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change message", "id", id)
		return
	}
	if err := s.amqpClient.PublishExpenseChanged(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change message", "id", id, "error", err)
	}
}

// Close closes storage and AMQP connections.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}

	return nil
}
