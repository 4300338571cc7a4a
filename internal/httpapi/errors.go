package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"pactum.org/internal/inventory"
	"pactum.org/internal/ledger"
	"pactum.org/internal/lifecycle"
	"pactum.org/internal/seal"
)

// handleDomainError maps domain errors onto HTTP status codes. Sealing
// failures distinguish timeout (the authority never answered) from upstream
// rejection so operators can tell them apart.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidTransition *lifecycle.InvalidTransitionError
		staleState        *lifecycle.StaleStateError
		notEligible       *lifecycle.NotEligibleError
		authErr           *seal.AuthError
		submitErr         *seal.SubmissionError
		rejectedErr       *seal.RejectedError
	)

	switch {
	case errors.Is(err, ledger.ErrUnknownKind),
		errors.Is(err, ledger.ErrContractIDRequired),
		errors.Is(err, lifecycle.ErrUnknownState),
		errors.Is(err, inventory.ErrInvalidStatusChange):
		writeError(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, lifecycle.ErrContractNotFound),
		errors.Is(err, inventory.ErrItemNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, ledger.ErrChainConflict):
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.As(err, &staleState):
		writeError(w, r, http.StatusConflict, staleState.Error())

	case errors.As(err, &notEligible):
		payload := map[string]any{
			"error":            "transition blocked by missing documents",
			"blocking_reasons": notEligible.Reasons,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusConflict, payload)

	case errors.As(err, &invalidTransition):
		payload := map[string]any{
			"error":           invalidTransition.Error(),
			"allowed_targets": invalidTransition.Allowed,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusUnprocessableEntity, payload)

	case errors.Is(err, seal.ErrSealTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "timestamp authority did not answer in time")

	case errors.As(err, &authErr), errors.As(err, &submitErr), errors.As(err, &rejectedErr):
		writeError(w, r, http.StatusBadGateway, fmt.Sprintf("timestamp authority error: %v", err))

	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
