package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spendinglog/internal/core"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// requestIDFor reuses a caller-supplied X-Request-Id when present and mints
// a fresh one otherwise.
func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// formatPrice renders a price for HTML output, e.g. "€3.50".
func formatPrice(price float64) string {
	return "€" + strconv.FormatFloat(price, 'f', 2, 64)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrExpenseNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorPartial writes the mapped status and a small HTML error fragment.
func writeErrorPartial(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := "Something went wrong"

	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		msg = "Invalid " + verr.Field + ": " + verr.Reason
	case errors.Is(err, core.ErrExpenseNotFound):
		msg = "Expense not found"
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
}
