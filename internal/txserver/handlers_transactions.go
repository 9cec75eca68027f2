package txserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/ledger/internal/apperr"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/txstore"
	"github.com/meridianfi/ledger/internal/web"
)

func (h *handlers) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req model.CreateTransactionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	tx, err := h.saga.Create(r.Context(), userID, req, requestMeta(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.WriteJSON(w, r, http.StatusCreated, tx)
}

func (h *handlers) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items, total, err := h.db.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		h.fail(w, r, apperr.Database("list transactions", err))
		return
	}
	if items == nil {
		items = []model.Transaction{}
	}

	filter.Normalize()
	web.WriteJSON(w, r, http.StatusOK, model.NewPage(items, filter.PageRequest, total))
}

func (h *handlers) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tx, err := h.db.GetTransaction(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, txstore.ErrNotFound) {
			h.fail(w, r, apperr.NotFound("transaction not found"))
			return
		}
		h.fail(w, r, apperr.Database("get transaction", err))
		return
	}
	web.WriteJSON(w, r, http.StatusOK, tx)
}

func (h *handlers) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req model.UpdateTransactionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	tx, err := h.saga.Update(r.Context(), userID, id, req, requestMeta(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	web.WriteJSON(w, r, http.StatusOK, tx)
}

func (h *handlers) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.saga.Delete(r.Context(), userID, id, requestMeta(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// parseTransactionFilter reads list query parameters. Unknown enum values
// and malformed numbers are validation errors; pagination out-of-range
// values are clamped later by Normalize.
func parseTransactionFilter(q url.Values) (model.TransactionFilter, error) {
	var f model.TransactionFilter

	if v := q.Get("status"); v != "" {
		status := model.TransactionStatus(v)
		if !model.ValidTransactionStatus(status) {
			return f, apperr.Validation("invalid status " + strconv.Quote(v))
		}
		f.Status = &status
	}
	if v := q.Get("currency"); v != "" {
		currency := model.Currency(v)
		if !model.ValidCurrency(currency) {
			return f, apperr.Validation("invalid currency " + strconv.Quote(v))
		}
		f.Currency = &currency
	}
	if v := q.Get("minAmount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, apperr.Validation("invalid minAmount")
		}
		f.MinAmount = &d
	}
	if v := q.Get("maxAmount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, apperr.Validation("invalid maxAmount")
		}
		f.MaxAmount = &d
	}
	if v := q.Get("startDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid startDate, want RFC 3339")
		}
		f.StartDate = &ts
	}
	if v := q.Get("endDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid endDate, want RFC 3339")
		}
		f.EndDate = &ts
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("invalid page")
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("invalid limit")
		}
		f.Limit = n
	}

	f.SortBy = q.Get("sortBy")
	f.SortOrder = model.NormalizeSortOrder(q.Get("sortOrder"))
	return f, nil
}
