package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront_backend/internals/features/orders/model"
	helper "storefront_backend/internals/helpers"
)

const ordersPath = "/api/orders"

var (
	// ErrStoreRejected: every strategy got a non-2xx answer.
	ErrStoreRejected = errors.New("store rejected the request")
	// ErrInvalidCredential: the identity endpoint refused the caller's token.
	ErrInvalidCredential = errors.New("invalid or expired credential")
)

// StrapiStore reads and patches orders in the headless CMS.
type StrapiStore struct {
	baseURL    string
	timeout    time.Duration
	strategies []AuthStrategy
	log        *zap.Logger
}

func NewStrapiStore(baseURL string, strategies []AuthStrategy, timeout time.Duration, logger *zap.Logger) *StrapiStore {
	return &StrapiStore{
		baseURL:    baseURL,
		timeout:    timeout,
		strategies: strategies,
		log:        logger.Named("order-store"),
	}
}

/* =========================================================
   Reads
========================================================= */

// FindByOrderNumber returns (order, true, nil) on a match and (zero, false, nil)
// when the store has no such order. Uniqueness of orderNumber is the store's job;
// the first match wins.
func (s *StrapiStore) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, bool, error) {
	var lastStatus int
	for _, st := range s.strategies {
		if !st.Available() {
			continue
		}
		order, found, status, err := s.find(ctx, st, orderNumber)
		if err != nil {
			return model.Order{}, false, err
		}
		if status >= 200 && status < 300 {
			return order, found, nil
		}
		lastStatus = status
		s.log.Debug("order lookup rejected", zap.String("strategy", st.Name()), zap.Int("status", status))
	}
	return model.Order{}, false, fmt.Errorf("%w: lookup status %d", ErrStoreRejected, lastStatus)
}

func (s *StrapiStore) find(ctx context.Context, st AuthStrategy, orderNumber string) (model.Order, bool, int, error) {
	q := url.Values{}
	q.Set("filters[orderNumber][$eq]", orderNumber)
	q.Set("pagination[pageSize]", "1")

	headers := map[string]string{}
	st.Authorize(headers)

	resp, err := helper.Send(ctx, s.timeout, helper.Outbound{
		Method:  fiber.MethodGet,
		URL:     s.baseURL + ordersPath + "?" + q.Encode(),
		Headers: headers,
	})
	if err != nil {
		return model.Order{}, false, 0, fmt.Errorf("store lookup: %w", err)
	}
	if !resp.OK() {
		return model.Order{}, false, resp.Status, nil
	}

	var list struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(resp.Body, &list); err != nil {
		return model.Order{}, false, resp.Status, fmt.Errorf("decode store list: %w", err)
	}
	if len(list.Data) == 0 {
		return model.Order{}, false, resp.Status, nil
	}
	order, err := decodeOrder(list.Data[0])
	if err != nil {
		return model.Order{}, false, resp.Status, err
	}
	return order, true, resp.Status, nil
}

// decodeOrder accepts both flat entries and entries nested under "attributes".
func decodeOrder(raw json.RawMessage) (model.Order, error) {
	var head struct {
		ID         int64           `json:"id"`
		DocumentID string          `json:"documentId"`
		Attributes json.RawMessage `json:"attributes"`
	}
	if err := sonic.Unmarshal(raw, &head); err != nil {
		return model.Order{}, fmt.Errorf("decode store entry: %w", err)
	}

	src := raw
	if len(head.Attributes) > 0 && string(head.Attributes) != "null" {
		src = head.Attributes
	}
	var o model.Order
	if err := sonic.Unmarshal(src, &o); err != nil {
		return model.Order{}, fmt.Errorf("decode order: %w", err)
	}
	o.ID = head.ID
	if head.DocumentID != "" {
		o.DocumentID = head.DocumentID
	}
	return o, nil
}

/* =========================================================
   Writes
========================================================= */

// UpdateOrder applies patch to the order behind ref and reports whether the store
// accepted it. Every ordinary failure (rejected, guard refused, missing order) is
// false; only transport failures come back as an error.
func (s *StrapiStore) UpdateOrder(ctx context.Context, ref model.OrderRef, patch model.OrderPatch) (bool, error) {
	outcome, err := s.ApplyPatch(ctx, ref, patch)
	return outcome == model.WriteApplied, err
}

// ApplyPatch is UpdateOrder with the reason for a non-write kept. Each strategy runs
// the full find, guard, PUT sequence; a store rejection falls through to the next one.
func (s *StrapiStore) ApplyPatch(ctx context.Context, ref model.OrderRef, patch model.OrderPatch) (model.WriteOutcome, error) {
	for _, st := range s.strategies {
		if !st.Available() {
			continue
		}
		outcome, err := s.updateWith(ctx, st, ref, patch)
		if err != nil {
			return model.WriteRejected, err
		}
		if outcome != model.WriteRejected {
			return outcome, nil
		}
		s.log.Warn("store rejected order update",
			zap.String("order_number", ref.Number()),
			zap.String("strategy", st.Name()))
	}

	s.log.Warn("order update abandoned", zap.String("order_number", ref.Number()))
	return model.WriteRejected, nil
}

func (s *StrapiStore) updateWith(ctx context.Context, st AuthStrategy, ref model.OrderRef, patch model.OrderPatch) (model.WriteOutcome, error) {
	current, found, status, err := s.find(ctx, st, ref.Number())
	if err != nil {
		return model.WriteRejected, err
	}
	if status < 200 || status >= 300 {
		return model.WriteRejected, nil
	}
	if !found {
		s.log.Warn("order vanished before update", zap.String("order_number", ref.Number()))
		return model.WriteSkipped, nil
	}
	if !patch.Allows(current) {
		s.log.Info("order update refused by transition guard",
			zap.String("order_number", ref.Number()),
			zap.String("current_payment_status", string(current.PaymentStatus)),
			zap.String("current_payment_id", current.CurrentPaymentID()))
		return model.WriteSkipped, nil
	}
	if !patch.Changes(current) {
		// Already in the requested state; another request got there first.
		return model.WriteSkipped, nil
	}

	key, ok := current.Ref().StoreKey()
	if !ok {
		return model.WriteSkipped, nil
	}

	headers := map[string]string{}
	st.Authorize(headers)
	resp, err := helper.Send(ctx, s.timeout, helper.Outbound{
		Method:  fiber.MethodPut,
		URL:     s.baseURL + ordersPath + "/" + url.PathEscape(key),
		Headers: headers,
		JSON:    map[string]any{"data": patch.Fields()},
	})
	if err != nil {
		return model.WriteRejected, fmt.Errorf("store update: %w", err)
	}
	if !resp.OK() {
		s.log.Debug("store update non-2xx",
			zap.String("strategy", st.Name()),
			zap.Int("status", resp.Status),
			zap.ByteString("body", truncateBody(resp.Body)))
		return model.WriteRejected, nil
	}
	return model.WriteApplied, nil
}

/* =========================================================
   Identity
========================================================= */

// ResolveUser exchanges a customer bearer token for the store's user id.
func (s *StrapiStore) ResolveUser(ctx context.Context, token string) (string, error) {
	resp, err := helper.Send(ctx, s.timeout, helper.Outbound{
		Method:  fiber.MethodGet,
		URL:     s.baseURL + "/api/users/me",
		Headers: map[string]string{fiber.HeaderAuthorization: "Bearer " + token},
	})
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	switch {
	case resp.Status == fiber.StatusUnauthorized || resp.Status == fiber.StatusForbidden:
		return "", ErrInvalidCredential
	case !resp.OK():
		return "", fmt.Errorf("%w: identity status %d", ErrStoreRejected, resp.Status)
	}

	var me struct {
		ID json.Number `json:"id"`
	}
	if err := sonic.Unmarshal(resp.Body, &me); err != nil {
		return "", fmt.Errorf("decode identity: %w", err)
	}
	if me.ID == "" {
		return "", ErrInvalidCredential
	}
	if _, err := strconv.ParseInt(string(me.ID), 10, 64); err != nil {
		return "", ErrInvalidCredential
	}
	return string(me.ID), nil
}

func truncateBody(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}

/* =========================================================
   Single types (site-wide settings entries)
========================================================= */

// FetchSingleType reads /api/{name} and returns the entry's fields, unwrapping
// "data" and, for v4 stores, "attributes".
func (s *StrapiStore) FetchSingleType(ctx context.Context, name string) (map[string]any, error) {
	var lastStatus int
	for _, st := range s.strategies {
		if !st.Available() {
			continue
		}
		headers := map[string]string{}
		st.Authorize(headers)
		resp, err := helper.Send(ctx, s.timeout, helper.Outbound{
			Method:  fiber.MethodGet,
			URL:     s.baseURL + "/api/" + url.PathEscape(name),
			Headers: headers,
		})
		if err != nil {
			return nil, fmt.Errorf("store fetch %s: %w", name, err)
		}
		if !resp.OK() {
			lastStatus = resp.Status
			continue
		}

		var env struct {
			Data map[string]any `json:"data"`
		}
		if err := sonic.Unmarshal(resp.Body, &env); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if env.Data == nil {
			return map[string]any{}, nil
		}
		if attrs, ok := env.Data["attributes"].(map[string]any); ok {
			return attrs, nil
		}
		return env.Data, nil
	}
	return nil, fmt.Errorf("%w: %s status %d", ErrStoreRejected, name, lastStatus)
}
