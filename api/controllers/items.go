package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizmanager/ledgersync/api/responses"
	"github.com/bizmanager/ledgersync/api/validators"
	"github.com/bizmanager/ledgersync/internal/items"
	"github.com/bizmanager/ledgersync/pkg/db/models"
	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/logger"
)

type createItemRequest struct {
	OrderID        int64  `json:"order_id" validate:"required,gt=0"`
	Field          string `json:"field" validate:"required"`
	Value          string `json:"value"`
	IdempotencyKey string `json:"idempotency_key"`
}

type createItemResponse struct {
	ItemID int64 `json:"item_id"`
}

type updateFieldRequest struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Field   string `json:"field" validate:"required"`
	Value   string `json:"value"`
}

type updateFieldResponse struct {
	Changed bool `json:"changed"`
}

type reorderEntry struct {
	ItemID    int64 `json:"item_id" validate:"required,gt=0"`
	SortOrder int   `json:"sort_order" validate:"gte=0"`
}

type reorderRequest struct {
	OrderID int64          `json:"order_id" validate:"required,gt=0"`
	Items   []reorderEntry `json:"items" validate:"required,min=1,dive"`
}

type itemResponse struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	Kind        string  `json:"kind"`
	ProductName string  `json:"product_name"`
	Price       string  `json:"price"`
	Quantity    string  `json:"quantity"`
	Amount      int64   `json:"amount"`
	TaxRate     *string `json:"tax_rate"`
	Remarks     string  `json:"remarks"`
	Unit        string  `json:"unit"`
	SortOrder   int     `json:"sort_order"`
}

// CreateLedgerItem inserts a row seeded with its product name.
func CreateLedgerItem(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		field, err := enums.ParseItemField(req.Field)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown field"))
			return
		}

		item, err := svc.CreateItem(r.Context(), items.CreateItemInput{
			Kind:           kind,
			OrderID:        req.OrderID,
			Field:          field,
			Value:          req.Value,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createItemResponse{ItemID: item.ID})
	}
}

// UpdateLedgerItemField commits one field value against an existing row.
func UpdateLedgerItemField(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParsePathInt64("item id", chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateFieldRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		field, err := enums.ParseItemField(req.Field)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown field"))
			return
		}

		changed, err := svc.UpdateItemField(r.Context(), items.UpdateFieldInput{
			Kind:    kind,
			OrderID: req.OrderID,
			ItemID:  itemID,
			Field:   field,
			Value:   req.Value,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updateFieldResponse{Changed: changed})
	}
}

// DeleteLedgerItem removes a row and closes its sort order gap.
func DeleteLedgerItem(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParsePathInt64("item id", chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryInt64(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteItem(r.Context(), kind, orderID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// ReorderLedgerItems applies a batched permutation of the ledger's rows.
func ReorderLedgerItems(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reorderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]items.SortEntry, 0, len(req.Items))
		for _, entry := range req.Items {
			entries = append(entries, items.SortEntry{ItemID: entry.ItemID, SortOrder: entry.SortOrder})
		}

		if err := svc.ReorderItems(r.Context(), kind, req.OrderID, entries); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"reordered": true})
	}
}

// ListLedgerItems returns the ledger's rows in display order, used by hosts
// to hydrate a ledger when an order is opened.
func ListLedgerItems(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryInt64(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListItems(r.Context(), kind, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]itemResponse, 0, len(list))
		for _, item := range list {
			out = append(out, toItemResponse(item))
		}
		responses.WriteSuccess(w, out)
	}
}

func parseKind(r *http.Request) (enums.LedgerKind, error) {
	kind, err := enums.ParseLedgerKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown ledger kind")
	}
	return kind, nil
}

func toItemResponse(item models.LedgerItem) itemResponse {
	out := itemResponse{
		ID:          item.ID,
		OrderID:     item.OrderID,
		Kind:        item.Kind.String(),
		ProductName: item.ProductName,
		Price:       item.Price.String(),
		Quantity:    item.Quantity.String(),
		Amount:      item.Amount,
		Remarks:     item.Remarks,
		Unit:        item.Unit,
		SortOrder:   item.SortOrder,
	}
	if item.TaxRate != nil {
		rate := item.TaxRate.String()
		out.TaxRate = &rate
	}
	return out
}
