package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
	appCtx "github.com/baechuer/order-lifecycle-service/internal/pkg/context"
)

// Envelope is the success envelope:
// {"data": ...}
type Envelope struct {
	Data any `json:"data,omitempty"`
}

// ErrorBody:
// {"error":{"code":"...","message":"...","meta":{...},"request_id":"..."}}
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// JSON writes raw JSON with Content-Type.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps payload with {"data": ...}
func Data(w http.ResponseWriter, status int, payload any) {
	JSON(w, status, Envelope{Data: payload})
}

// Fail writes the error body.
func Fail(w http.ResponseWriter, status int, code, message string, meta map[string]string, requestID string) {
	JSON(w, status, ErrorBody{
		Error: ErrorPayload{
			Code:      code,
			Message:   message,
			Meta:      meta,
			RequestID: requestID,
		},
	})
}

// Err maps an error to the wire: AppError codes get their HTTP status and
// are shown to the client; anything else becomes an opaque 500.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	rid := appCtx.RequestID(r.Context())

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		Fail(w, statusFromCode(appErr.Code), string(appErr.Code), appErr.Message, appErr.Meta, rid)
		return
	}
	Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", nil, rid)
}

func statusFromCode(code domain.ErrCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
