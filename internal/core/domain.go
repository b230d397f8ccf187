package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Date is a calendar date with no time component.
	Date struct {
		time.Time
	}

	// Label is a named tag applicable to any number of expenses.
	// Names are globally unique, matched case-sensitively as persisted.
	Label struct {
		ID   int64
		Name string
	}

	// Expense is a single logged purchase with its current label set.
	Expense struct {
		ID       int64
		ItemName string
		Price    float64
		Date     Date
		Labels   []Label
	}
)

var (
	// ErrExpenseNotFound is returned when a referenced expense id does not exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrLabelConflict is returned when a label insert lost a uniqueness race
	// and the recovery re-read still found no row.
	ErrLabelConflict = errors.New("label name conflict")
)

// ValidationError reports a malformed or missing input field.
// The operation that returned it performed no write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String renders the date back in YYYY-MM-DD form, the format persisted in the store.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ItemName) == "" {
		return &ValidationError{Field: "item_name", Reason: "must not be empty"}
	}
	if len(e.ItemName) > 200 {
		return &ValidationError{Field: "item_name", Reason: "too long (max 200 characters)"}
	}
	if e.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	return nil
}

// LabelNames returns the names of the expense's labels in order.
func (e Expense) LabelNames() []string {
	names := make([]string, len(e.Labels))
	for i, l := range e.Labels {
		names[i] = l.Name
	}
	return names
}

// HasLabel reports whether the expense carries a label with the given name.
func (e Expense) HasLabel(name string) bool {
	for _, l := range e.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}
