package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bizmanager/ledgersync/pkg/enums"
	pkgerrors "github.com/bizmanager/ledgersync/pkg/errors"
	"github.com/bizmanager/ledgersync/pkg/types"
)

// TokenHeader carries the opaque anti-forgery token on every store call.
const TokenHeader = "X-Ledger-Token"

// TransportContext bundles everything the HTTP store needs to reach the
// remote endpoint. It is resolved once by the hosting context and injected at
// construction, never re-derived per call.
type TransportContext struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// HTTPStore speaks the bundled server's JSON envelope.
type HTTPStore struct {
	transport TransportContext
}

// NewHTTPStore validates the transport context and returns a ready client.
func NewHTTPStore(transport TransportContext) (*HTTPStore, error) {
	if transport.BaseURL == "" {
		return nil, fmt.Errorf("store base url required")
	}
	if transport.HTTPClient == nil {
		transport.HTTPClient = http.DefaultClient
	}
	return &HTTPStore{transport: transport}, nil
}

type createItemRequest struct {
	OrderID        int64  `json:"order_id"`
	Field          string `json:"field"`
	Value          string `json:"value"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type createItemResponse struct {
	ItemID int64 `json:"item_id"`
}

type updateFieldRequest struct {
	OrderID int64  `json:"order_id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
}

type updateFieldResponse struct {
	Changed bool `json:"changed"`
}

type reorderRequest struct {
	OrderID int64       `json:"order_id"`
	Items   []SortEntry `json:"items"`
}

// CreateItem persists a new row seeded with one field and returns its id.
func (s *HTTPStore) CreateItem(ctx context.Context, kind enums.LedgerKind, orderID int64, field enums.ItemField, value, idempotencyKey string) (int64, error) {
	url := fmt.Sprintf("%s/api/v1/ledgers/%s/items", s.transport.BaseURL, kind)
	body := createItemRequest{OrderID: orderID, Field: field.String(), Value: value, IdempotencyKey: idempotencyKey}

	var out createItemResponse
	if err := s.do(ctx, http.MethodPost, url, body, &out); err != nil {
		return 0, err
	}
	if out.ItemID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeParse, "store returned no item id")
	}
	return out.ItemID, nil
}

// UpdateItemField upserts a single field and reports whether the stored value
// actually differed.
func (s *HTTPStore) UpdateItemField(ctx context.Context, kind enums.LedgerKind, itemID int64, field enums.ItemField, value string, orderID int64) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/ledgers/%s/items/%d", s.transport.BaseURL, kind, itemID)
	body := updateFieldRequest{OrderID: orderID, Field: field.String(), Value: value}

	var out updateFieldResponse
	if err := s.do(ctx, http.MethodPatch, url, body, &out); err != nil {
		return false, err
	}
	return out.Changed, nil
}

// DeleteItem removes a persisted row.
func (s *HTTPStore) DeleteItem(ctx context.Context, kind enums.LedgerKind, itemID, orderID int64) error {
	url := fmt.Sprintf("%s/api/v1/ledgers/%s/items/%d?order_id=%s",
		s.transport.BaseURL, kind, itemID, strconv.FormatInt(orderID, 10))
	return s.do(ctx, http.MethodDelete, url, nil, nil)
}

// ListItems fetches the ledger's stored rows in display order.
func (s *HTTPStore) ListItems(ctx context.Context, kind enums.LedgerKind, orderID int64) ([]ItemSnapshot, error) {
	url := fmt.Sprintf("%s/api/v1/ledgers/%s/items?order_id=%s",
		s.transport.BaseURL, kind, strconv.FormatInt(orderID, 10))

	var out []ItemSnapshot
	if err := s.do(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReorderItems persists the batched (item, rank) pairs in one call.
func (s *HTTPStore) ReorderItems(ctx context.Context, kind enums.LedgerKind, orderID int64, entries []SortEntry) error {
	url := fmt.Sprintf("%s/api/v1/ledgers/%s/reorder", s.transport.BaseURL, kind)
	return s.do(ctx, http.MethodPost, url, reorderRequest{OrderID: orderID, Items: entries}, nil)
}

func (s *HTTPStore) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.transport.Token != "" {
		req.Header.Set(TokenHeader, s.transport.Token)
	}

	resp, err := s.transport.HTTPClient.Do(req)
	if err != nil {
		// Cancellation and deadline pass through untouched so the
		// coordinator can distinguish supersession from failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "read response")
	}

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode response envelope")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeParse, err, "decode response data")
	}
	return nil
}

func errorFromResponse(status int, raw []byte) error {
	message := "store rejected request"
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	var code pkgerrors.Code
	switch status {
	case http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		code = pkgerrors.CodeForbidden
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusBadRequest:
		code = pkgerrors.CodeValidation
	case http.StatusConflict:
		code = pkgerrors.CodeConflict
	case http.StatusGatewayTimeout:
		code = pkgerrors.CodeTimeout
	default:
		code = pkgerrors.CodeDependency
	}
	return pkgerrors.New(code, message)
}
