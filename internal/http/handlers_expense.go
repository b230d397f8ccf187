package http

import (
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spendinglog/internal/core"
	applog "spendinglog/internal/log"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	expenses, err := s.store.FindByDateRange(r.Context(),
		monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"))
	if err != nil {
		slog.ErrorContext(r.Context(), "Month listing error", "error", err)
	}

	labels, err := s.getLabels(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Label catalogue error", "error", err)
	}

	labelNames := make([]string, 0, len(labels))
	for _, l := range labels {
		labelNames = append(labelNames, l.Name)
	}

	data := struct {
		Today    string
		Start    string
		End      string
		Labels   []string
		Expenses []expenseRow
	}{
		Today:    now.Format("2006-01-02"),
		Start:    monthStart.Format("2006-01-02"),
		End:      monthEnd.Format("2006-01-02"),
		Labels:   labelNames,
		Expenses: expenseRows(expenses),
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleExpenses dispatches /expenses: POST creates, GET lists by date range.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	case http.MethodGet:
		s.handleExpensesByRange(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Malformed request</div>`))
		return
	}

	itemName := sanitizeInput(r.Form.Get("item_name"))
	priceText := strings.TrimSpace(r.Form.Get("price"))
	dateText := strings.TrimSpace(r.Form.Get("date"))
	rawLabels := sanitizeInput(r.Form.Get("labels"))

	expense, err := s.store.CreateExpense(r.Context(), itemName, priceText, dateText, rawLabels)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create expense",
			applog.FieldError, err,
			applog.FieldItemName, itemName,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpCreate)
		writeErrorPartial(w, err)
		return
	}

	s.invalidateLabels()

	slog.InfoContext(r.Context(), "Expense created successfully",
		applog.FieldExpenseID, expense.ID,
		applog.FieldItemName, expense.ItemName,
		applog.FieldPrice, expense.Price,
		applog.FieldLabels, expense.LabelNames(),
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpCreate)

	labelSuffix := ""
	if names := expense.LabelNames(); len(names) > 0 {
		labelSuffix = " [" + strings.Join(names, ", ") + "]"
	}

	w.Header().Set("HX-Trigger", `{"expense:created": {"id": `+strconv.FormatInt(expense.ID, 10)+`}}`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Saved #` + strconv.FormatInt(expense.ID, 10) + `: ` +
		template.HTMLEscapeString(expense.ItemName) +
		` — ` + template.HTMLEscapeString(formatPrice(expense.Price)) +
		template.HTMLEscapeString(labelSuffix) + `</div>`))
}

func (s *Server) handleExpensesByRange(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	start := strings.TrimSpace(r.URL.Query().Get("start"))
	end := strings.TrimSpace(r.URL.Query().Get("end"))

	expenses, err := s.store.FindByDateRange(r.Context(), start, end)
	if err != nil {
		slog.ErrorContext(r.Context(), "Range query error", "error", err, "start", start, "end", end)
		writeErrorPartial(w, err)
		return
	}

	data := struct {
		Start    string
		End      string
		Expenses []expenseRow
	}{
		Start:    start,
		End:      end,
		Expenses: expenseRows(expenses),
	}

	if err := s.templates.ExecuteTemplate(w, "expense_list", data); err != nil {
		slog.ErrorContext(r.Context(), "Expense list template execution failed", "error", err)
		_, _ = w.Write([]byte(`<div class="error">Error rendering listing</div>`))
	}
}

func (s *Server) handleReplaceLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Malformed request</div>`))
		return
	}

	idText := strings.TrimSpace(r.Form.Get("id"))
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Invalid expense id</div>`))
		return
	}
	rawLabels := sanitizeInput(r.Form.Get("labels"))

	expense, err := s.store.ReplaceLabels(r.Context(), id, rawLabels)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to replace labels",
			applog.FieldError, err,
			applog.FieldExpenseID, id,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpReplace)
		writeErrorPartial(w, err)
		return
	}

	s.invalidateLabels()

	slog.InfoContext(r.Context(), "Labels replaced",
		applog.FieldExpenseID, expense.ID,
		applog.FieldLabels, expense.LabelNames(),
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpReplace)

	w.Header().Set("HX-Trigger", `{"labels:changed": {"id": `+strconv.FormatInt(expense.ID, 10)+`}}`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Labels updated: ` +
		template.HTMLEscapeString(strings.Join(expense.LabelNames(), ", ")) + `</div>`))
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	labels, err := s.getLabels(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Label catalogue error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<option value="">Error loading labels</option>`))
		return
	}

	w.WriteHeader(http.StatusOK)
	for _, l := range labels {
		escaped := template.HTMLEscapeString(l.Name)
		_, _ = w.Write([]byte(`<option value="` + escaped + `">` + escaped + `</option>`))
	}
}

// expenseRow is the template-facing shape of an expense.
type expenseRow struct {
	ID     int64
	Date   string
	Item   string
	Price  string
	Labels string
}

func expenseRows(expenses []core.Expense) []expenseRow {
	rows := make([]expenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, expenseRow{
			ID:     e.ID,
			Date:   e.Date.String(),
			Item:   e.ItemName,
			Price:  formatPrice(e.Price),
			Labels: strings.Join(e.LabelNames(), ", "),
		})
	}
	return rows
}
