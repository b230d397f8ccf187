package sheets

import (
	"context"

	"spendinglog/internal/core"
)

// ExpenseAppender is the outbound port for the backup export target.
type ExpenseAppender interface {
	// Append writes one expense row to the target and returns a row reference.
	Append(ctx context.Context, e core.Expense) (rowRef string, err error)
}
