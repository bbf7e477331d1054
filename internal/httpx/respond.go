package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Line      int    `json:"line,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindWebhookVerification:
		return http.StatusBadRequest
	case apperr.KindProductUnavailable, apperr.KindVariantNotFound:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound, apperr.KindAlertNotFound:
		return http.StatusNotFound
	case apperr.KindInsufficientStock, apperr.KindInvalidTransition, apperr.KindAlertAlreadyResolved,
		apperr.KindConflict, apperr.KindDuplicateOrderNumber:
		return http.StatusConflict
	case apperr.KindPaymentProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an application error to its status. Infrastructure
// failures are logged and answered without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}
	body := errorBody{Error: ae.Kind.String(), Message: ae.Error(), Line: ae.Line}
	if ae.Kind == apperr.KindInsufficientStock {
		body.Available = &ae.Available
	}
	if ae.Kind == apperr.KindPaymentProvider {
		log.Error("payment provider failed", zap.Error(err))
		body.Message = "payment provider unavailable"
	}
	writeJSON(w, statusOf(ae.Kind), body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid json")
	}
	return nil
}
