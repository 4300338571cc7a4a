package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pactum.org/internal/ids"
	"pactum.org/internal/inventory"
	"pactum.org/internal/ledger"
	"pactum.org/internal/lifecycle"
	"pactum.org/internal/stream"
)

type createContractRequest struct {
	Notarized bool            `json:"notarized"`
	Financed  bool            `json:"financed"`
	Terms     json.RawMessage `json:"terms,omitempty"`
}

type createContractResponse struct {
	ContractID string           `json:"contract_id"`
	State      lifecycle.State  `json:"state"`
	Receipt    ledger.Receipt   `json:"receipt"`
	Inventory  []inventory.Item `json:"inventory"`
}

type registerEventRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type transitionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type submitItemRequest struct {
	DocumentHash string `json:"document_hash"`
}

type validateItemRequest struct {
	ValidatedBy string `json:"validated_by"`
}

type rejectItemRequest struct {
	Reason string `json:"reason"`
}

type listEventsResponse struct {
	ContractID string         `json:"contract_id"`
	Items      []ledger.Event `json:"items"`
	AsOf       time.Time      `json:"as_of"`
}

func (a *API) handleContractsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createContract(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

// handleContractResource dispatches /v1/contracts/{id}[/...] by hand; the
// route shapes are too irregular for ServeMux patterns alone.
func (a *API) handleContractResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/contracts/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	contractID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getContract(w, r, contractID)

	case len(parts) == 2 && parts[1] == "events":
		switch r.Method {
		case http.MethodPost:
			a.registerEvent(w, r, contractID)
		case http.MethodGet:
			a.listEvents(w, r, contractID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}

	case len(parts) == 3 && parts[1] == "chain" && parts[2] == "verify":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.verifyChain(w, r, contractID)

	case len(parts) == 2 && parts[1] == "eligibility":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.checkEligibility(w, r, contractID)

	case len(parts) == 2 && parts[1] == "transition":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transition(w, r, contractID)

	case len(parts) == 2 && parts[1] == "inventory":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listInventory(w, r, contractID)

	case len(parts) == 3 && parts[1] == "inventory":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeItem(w, r, contractID, parts[2])

	case len(parts) == 4 && parts[1] == "inventory":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.itemAction(w, r, contractID, parts[2], parts[3])

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createContract(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	contractID := ids.NewContract()
	payload := map[string]any{
		"contract_id": contractID,
		"notarized":   req.Notarized,
		"financed":    req.Financed,
	}
	if len(req.Terms) > 0 {
		payload["terms"] = json.RawMessage(req.Terms)
	}

	receipt, err := a.deps.Appender.Append(r.Context(), contractID, ledger.KindContractCreated, payload)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.deps.Lifecycle.InitContract(r.Context(), contractID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	items, err := a.deps.Inventory.InitContract(r.Context(), contractID, inventory.ContractAttrs{
		Notarized: req.Notarized,
		Financed:  req.Financed,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.publish(contractID, string(ledger.KindContractCreated), receipt)
	a.audit(r.Context(), "contract.create", "contract", contractID, map[string]string{
		"event_id": receipt.EventID,
	})

	w.Header().Set("Location", "/v1/contracts/"+contractID)
	writeJSON(w, http.StatusCreated, createContractResponse{
		ContractID: contractID,
		State:      lifecycle.StateInitiated,
		Receipt:    receipt,
		Inventory:  items,
	})
}

func (a *API) getContract(w http.ResponseWriter, r *http.Request, contractID string) {
	state, err := a.deps.Lifecycle.CurrentState(r.Context(), contractID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract_id": contractID,
		"state":       state,
	})
}

func (a *API) registerEvent(w http.ResponseWriter, r *http.Request, contractID string) {
	var req registerEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind := ledger.Kind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown event kind")
		return
	}
	var payload any
	if len(req.Payload) > 0 {
		payload = json.RawMessage(req.Payload)
	} else {
		payload = map[string]any{}
	}

	receipt, err := a.deps.Appender.Append(r.Context(), contractID, kind, payload)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.publish(contractID, string(kind), receipt)
	a.audit(r.Context(), "ledger.event.append", "event", receipt.EventID, map[string]string{
		"contract_id": contractID,
		"kind":        string(kind),
	})
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request, contractID string) {
	items, err := a.deps.Events.ListEvents(r.Context(), contractID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		ContractID: contractID,
		Items:      items,
		AsOf:       time.Now().UTC(),
	})
}

func (a *API) verifyChain(w http.ResponseWriter, r *http.Request, contractID string) {
	result, err := a.deps.Verifier.Verify(r.Context(), contractID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) checkEligibility(w http.ResponseWriter, r *http.Request, contractID string) {
	from, err := a.deps.Lifecycle.CurrentState(r.Context(), contractID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var to *lifecycle.State
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		target, err := lifecycle.ParseState(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		to = &target
	}

	result, err := a.deps.Gate.CheckEligibility(r.Context(), contractID, from, to)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, contractID string) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	from, err := lifecycle.ParseState(req.From)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := lifecycle.ParseState(req.To)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	receipt, err := a.deps.Lifecycle.Transition(r.Context(), contractID, from, to)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.publish(contractID, string(ledger.KindStateTransitioned), receipt)
	a.audit(r.Context(), "lifecycle.transition", "contract", contractID, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"contract_id": contractID,
		"state":       to,
		"receipt":     receipt,
	})
}

func (a *API) listInventory(w http.ResponseWriter, r *http.Request, contractID string) {
	items, err := a.deps.Inventory.List(r.Context(), contractID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract_id": contractID,
		"items":       items,
	})
}

func (a *API) itemAction(w http.ResponseWriter, r *http.Request, contractID, itemID, action string) {
	var (
		item inventory.Item
		err  error
	)
	switch action {
	case "submit":
		var req submitItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.DocumentHash) == "" {
			writeError(w, r, http.StatusBadRequest, "document_hash is required")
			return
		}
		item, err = a.deps.Inventory.Submit(r.Context(), contractID, itemID, req.DocumentHash)
	case "validate":
		var req validateItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		item, err = a.deps.Inventory.Validate(r.Context(), contractID, itemID, req.ValidatedBy)
	case "reject":
		var req rejectItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			writeError(w, r, http.StatusBadRequest, "reason is required")
			return
		}
		item, err = a.deps.Inventory.Reject(r.Context(), contractID, itemID, req.Reason)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "inventory.item."+action, "item", itemID, map[string]string{
		"contract_id": contractID,
		"status":      item.Status,
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) removeItem(w http.ResponseWriter, r *http.Request, contractID, itemID string) {
	removedBy, _ := partyFromRequest(r)
	if err := a.deps.Inventory.Remove(r.Context(), contractID, itemID, removedBy); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "inventory.item.remove", "item", itemID, map[string]string{
		"contract_id": contractID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) publish(contractID, kind string, receipt ledger.Receipt) {
	if a.deps.Stream == nil {
		return
	}
	a.deps.Stream.Publish(stream.AppendNotice{
		ContractID:  contractID,
		EventID:     receipt.EventID,
		Kind:        kind,
		ContentHash: receipt.ContentHash,
		Sequence:    receipt.Sequence,
		SealID:      receipt.SealID,
		Timestamp:   receipt.RecordedAt,
	})
}
