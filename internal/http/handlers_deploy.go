package http

import (
	"io"
	"log/slog"
	"net/http"

	"spendinglog/internal/deploy"
	applog "spendinglog/internal/log"
)

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 1 << 20

// handleUpdateServer verifies the push webhook signature and pulls the
// latest code. Bad signatures get a 418, matching the hub convention of
// refusing without revealing why.
func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.ErrorContext(r.Context(), "Webhook body read error", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature")
	if !deploy.VerifySignature(signature, body, s.webhookSecret) {
		slog.WarnContext(r.Context(), "Webhook signature rejected",
			applog.FieldClientIP, extractClientIP(r),
			applog.FieldComponent, applog.ComponentDeploy,
			applog.FieldOperation, applog.OpDeploy)
		w.WriteHeader(http.StatusTeapot)
		return
	}

	output, err := s.puller.Pull(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Deploy pull failed",
			applog.FieldError, err,
			"output", output,
			applog.FieldComponent, applog.ComponentDeploy,
			applog.FieldOperation, applog.OpDeploy)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("pull failed"))
		return
	}

	slog.InfoContext(r.Context(), "Deploy pull completed",
		applog.FieldComponent, applog.ComponentDeploy,
		applog.FieldOperation, applog.OpDeploy)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("updated"))
}
