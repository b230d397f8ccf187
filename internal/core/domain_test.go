package core

import (
	"errors"
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-05")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.Year() != 2024 || int(d.Month()) != 1 || d.Day() != 5 {
		t.Errorf("ParseDate returned wrong date: %v", d)
	}
	if d.String() != "2024-01-05" {
		t.Errorf("Date.String() = %q, want %q", d.String(), "2024-01-05")
	}

	for _, bad := range []string{"", "not-a-date", "2024-13-01", "05/01/2024"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	valid := Expense{ItemName: "Coffee", Price: 3.5, Date: NewDate(2024, 1, 5)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid expense should pass validation: %v", err)
	}

	tests := []struct {
		name      string
		expense   Expense
		wantField string
	}{
		{
			name:      "empty item name",
			expense:   Expense{ItemName: "  ", Price: 1, Date: NewDate(2024, 1, 5)},
			wantField: "item_name",
		},
		{
			name:      "negative price",
			expense:   Expense{ItemName: "Coffee", Price: -1, Date: NewDate(2024, 1, 5)},
			wantField: "price",
		},
		{
			name:      "zero date",
			expense:   Expense{ItemName: "Coffee", Price: 1},
			wantField: "date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.expense.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestExpenseHasLabel(t *testing.T) {
	e := Expense{Labels: []Label{{ID: 1, Name: "food"}, {ID: 2, Name: "drink"}}}
	if !e.HasLabel("food") {
		t.Error("expected HasLabel(\"food\") to be true")
	}
	if e.HasLabel("Food") {
		t.Error("label matching must be case-sensitive")
	}
	if got := e.LabelNames(); len(got) != 2 || got[0] != "food" || got[1] != "drink" {
		t.Errorf("LabelNames() = %v", got)
	}
}
