package dto

import (
	"encoding/json"
	"net/http"

	"chatapi/internal/model"
)

// Machine-readable error codes surfaced to clients.
const (
	CodeNoToken           = "NO_TOKEN"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeNoModelID         = "NO_MODEL_ID"
	CodeUsageLimitReached = "USAGE_LIMIT_EXCEEDED"
)

// ErrorResponse is the JSON envelope for enforcement errors. Details is only
// populated for quota denials so clients can render "X/Y tokens used" and an
// upgrade prompt.
type ErrorResponse struct {
	Error      string                   `json:"error"`
	Code       string                   `json:"code"`
	Details    *model.AdmissionDecision `json:"details,omitempty"`
	Message    string                   `json:"message"`
	UpgradeURL string                   `json:"upgradeUrl,omitempty"`
}

// Write sends the envelope with the given HTTP status.
func (e ErrorResponse) Write(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
