package core

import (
	"reflect"
	"testing"
)

func TestSplitLabels(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "simple pair", raw: "food, drink", want: []string{"food", "drink"}},
		{name: "no spaces", raw: "food,drink", want: []string{"food", "drink"}},
		{name: "surrounding whitespace trimmed", raw: "  food ,\tdrink ", want: []string{"food", "drink"}},
		{name: "trailing comma dropped", raw: "food,", want: []string{"food"}},
		{name: "leading comma dropped", raw: ",food", want: []string{"food"}},
		{name: "all-whitespace token dropped", raw: "food, ,drink", want: []string{"food", "drink"}},
		{name: "duplicates collapse", raw: "food,food,drink,food", want: []string{"food", "drink"}},
		{name: "case sensitive", raw: "Food,food", want: []string{"Food", "food"}},
		{name: "inner whitespace kept", raw: "eating out", want: []string{"eating out"}},
		{name: "empty string", raw: "", want: nil},
		{name: "only commas", raw: ",,,", want: nil},
		{name: "only whitespace", raw: "   ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLabels(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitLabels(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
