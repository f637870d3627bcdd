package channelwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/inventory-sync/internal/automation"
	"github.com/angelmondragon/inventory-sync/internal/dispatch"
	"github.com/angelmondragon/inventory-sync/internal/inventory"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	channelapi "github.com/angelmondragon/inventory-sync/pkg/channel"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/metrics"
)

type quantityApplier interface {
	ApplyQuantity(ctx context.Context, input inventory.ApplyQuantityInput) (*ledger.ApplyResult, error)
}

type taskSubmitter interface {
	Submit(ctx context.Context, task dispatch.Task) error
}

type eventSink interface {
	Publish(ctx context.Context, route string, payload any) error
}

type deliveryGuard interface {
	Claim(ctx context.Context, deliveryID string) (ClaimState, error)
	Complete(ctx context.Context, deliveryID string) error
	Release(ctx context.Context, deliveryID string) error
}

// AckStatus is how the gateway answers the channel.
type AckStatus string

const (
	AckAccepted     AckStatus = "accepted"
	AckUnauthorized AckStatus = "unauthorized"
	AckBadRequest   AckStatus = "bad_request"
	AckInProgress   AckStatus = "in_progress"
	AckFailed       AckStatus = "failed"
)

// AckResult is the outcome of one delivery. Failed results ask the sender
// to redeliver, which is safe because every handler write is an absolute
// upsert.
type AckResult struct {
	Status    AckStatus
	Topic     string
	Kind      enums.WebhookEventKind
	Duplicate bool
	Ignored   bool
	Err       error
}

func (r AckResult) HTTPStatus() int {
	switch r.Status {
	case AckAccepted:
		return http.StatusOK
	case AckUnauthorized:
		return http.StatusUnauthorized
	case AckBadRequest:
		return http.StatusBadRequest
	case AckInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Meta carries the delivery headers that are not part of the signed body.
type Meta struct {
	DeliveryID string
	ShopDomain string
	ReceivedAt time.Time
}

type handlerFunc func(ctx context.Context, raw []byte, meta Meta) error

type ServiceParams struct {
	Secret     string
	Encoding   string
	Repo       Repository
	Inventory  quantityApplier
	Dispatcher taskSubmitter
	Sink       eventSink
	Guard      deliveryGuard
	Logger     *logger.Logger
	Metrics    *metrics.WebhookMetrics
}

// Service verifies, deduplicates and routes channel webhooks.
type Service struct {
	secret     string
	encoding   string
	repo       Repository
	inventory  quantityApplier
	dispatcher taskSubmitter
	sink       eventSink
	guard      deliveryGuard
	logger     *logger.Logger
	metrics    *metrics.WebhookMetrics
	handlers   map[enums.WebhookEventKind]handlerFunc
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if strings.TrimSpace(params.Secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "channel repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher required")
	}
	if params.Sink == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "automation sink required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	s := &Service{
		secret:     params.Secret,
		encoding:   params.Encoding,
		repo:       params.Repo,
		inventory:  params.Inventory,
		dispatcher: params.Dispatcher,
		sink:       params.Sink,
		guard:      params.Guard,
		logger:     params.Logger,
		metrics:    params.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.handlers = map[enums.WebhookEventKind]handlerFunc{
		enums.WebhookEventOrderCreated:         s.handleOrder,
		enums.WebhookEventOrderUpdated:         s.handleOrder,
		enums.WebhookEventOrderFulfilled:       s.handleOrderFulfilled,
		enums.WebhookEventOrderCancelled:       s.handleOrderCancelled,
		enums.WebhookEventProductSync:          s.handleProductSync,
		enums.WebhookEventProductDelete:        s.handleProductDelete,
		enums.WebhookEventInventoryLevelUpdate: s.handleInventoryLevel,
		enums.WebhookEventCustomerSync:         s.handleCustomerSync,
	}
	return s, nil
}

// Handle processes one delivery end to end.
func (s *Service) Handle(ctx context.Context, raw []byte, signature, topic string, meta Meta) AckResult {
	topic = strings.TrimSpace(topic)
	kind := enums.KindForTopic(topic)
	ctx = s.logger.WithTopic(ctx, topic)
	if meta.DeliveryID != "" {
		ctx = s.logger.WithField(ctx, "delivery_id", meta.DeliveryID)
	}
	if meta.ReceivedAt.IsZero() {
		meta.ReceivedAt = s.now()
	}
	result := AckResult{Topic: topic, Kind: kind}

	if !channelapi.VerifySignature(s.secret, raw, signature, s.encoding) {
		s.logger.Warn(ctx, "channel webhook rejected: invalid signature")
		s.metrics.IncEvent(topic, metrics.OutcomeUnauthorized)
		result.Status = AckUnauthorized
		result.Err = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		return result
	}

	if !json.Valid(raw) {
		s.metrics.IncEvent(topic, metrics.OutcomeBadRequest)
		result.Status = AckBadRequest
		result.Err = pkgerrors.New(pkgerrors.CodeValidation, "webhook body is not valid json")
		return result
	}

	switch s.claim(ctx, meta.DeliveryID) {
	case ClaimCompleted:
		s.logger.Info(ctx, "channel webhook duplicate delivery acked")
		s.metrics.IncEvent(topic, metrics.OutcomeDuplicate)
		result.Status = AckAccepted
		result.Duplicate = true
		return result
	case ClaimInProgress:
		s.logger.Info(ctx, "channel webhook delivery still in progress, asking for redelivery")
		s.metrics.IncEvent(topic, metrics.OutcomeInProgress)
		result.Status = AckInProgress
		result.Err = pkgerrors.New(pkgerrors.CodeConflict, "delivery is still being processed")
		return result
	}

	// automation gets every authentic event, including ones the handlers reject
	s.forward(ctx, topic, raw, meta)

	handler, ok := s.handlers[kind]
	if !ok {
		s.logger.Info(ctx, "channel webhook topic not handled, acking")
		result.Ignored = true
	} else if err := handler(ctx, raw, meta); err != nil {
		s.release(ctx, meta.DeliveryID)
		result.Err = err
		if pkgerrors.Is(err, pkgerrors.CodeValidation) {
			s.logger.Warn(ctx, "channel webhook payload rejected: "+err.Error())
			s.metrics.IncEvent(topic, metrics.OutcomeBadRequest)
			result.Status = AckBadRequest
			return result
		}
		s.logger.Error(ctx, "channel webhook handling failed", err)
		s.metrics.IncEvent(topic, metrics.OutcomeFailed)
		result.Status = AckFailed
		return result
	}

	s.complete(ctx, meta.DeliveryID)

	if result.Ignored {
		s.metrics.IncEvent(topic, metrics.OutcomeIgnored)
	} else {
		s.metrics.IncEvent(topic, metrics.OutcomeAcked)
	}
	result.Status = AckAccepted
	return result
}

// claim falls back to ClaimAcquired when the guard is unusable: every write
// below is an upsert, so processing twice is safe.
func (s *Service) claim(ctx context.Context, deliveryID string) ClaimState {
	if s.guard == nil || deliveryID == "" {
		return ClaimAcquired
	}
	state, err := s.guard.Claim(ctx, deliveryID)
	if err != nil {
		s.logger.Warn(ctx, "webhook dedupe check failed: "+err.Error())
		return ClaimAcquired
	}
	return state
}

func (s *Service) complete(ctx context.Context, deliveryID string) {
	if s.guard == nil || deliveryID == "" {
		return
	}
	if err := s.guard.Complete(context.WithoutCancel(ctx), deliveryID); err != nil {
		s.logger.Warn(ctx, "webhook dedupe mark failed: "+err.Error())
	}
}

func (s *Service) release(ctx context.Context, deliveryID string) {
	if s.guard == nil || deliveryID == "" {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), deliveryID); err != nil {
		s.logger.Warn(ctx, "webhook dedupe cleanup failed: "+err.Error())
	}
}

func (s *Service) forward(ctx context.Context, topic string, raw []byte, meta Meta) {
	envelope := Envelope{
		Topic:      topic,
		ShopDomain: meta.ShopDomain,
		DeliveryID: meta.DeliveryID,
		Payload:    json.RawMessage(append([]byte(nil), raw...)),
		Timestamp:  meta.ReceivedAt,
	}
	s.submit(ctx, dispatch.Task{
		Kind:    enums.DispatchTaskWebhookForward,
		Payload: envelope,
		Run: func(ctx context.Context) error {
			return s.sink.Publish(ctx, automation.RouteWebhook, envelope)
		},
	})
}

func (s *Service) submit(ctx context.Context, task dispatch.Task) {
	if err := s.dispatcher.Submit(ctx, task); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("%s task not queued: %v", task.Kind, err))
	}
}

func decode[T any](raw []byte) (*T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	return &payload, nil
}

func storeError(err error, what string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, what)
}

func (s *Service) handleOrder(ctx context.Context, raw []byte, _ Meta) error {
	_, err := s.upsertOrder(ctx, raw, nil)
	return err
}

func (s *Service) handleOrderFulfilled(ctx context.Context, raw []byte, _ Meta) error {
	order, err := s.upsertOrder(ctx, raw, nil)
	if err != nil {
		return err
	}
	payload := json.RawMessage(append([]byte(nil), raw...))
	s.submit(ctx, dispatch.Task{
		Kind:    enums.DispatchTaskOrderFulfilled,
		Payload: map[string]string{"orderId": order.ExternalID},
		Run: func(ctx context.Context) error {
			return s.sink.Publish(ctx, automation.RouteOrderFulfilled, payload)
		},
	})
	return nil
}

func (s *Service) handleOrderCancelled(ctx context.Context, raw []byte, meta Meta) error {
	_, err := s.upsertOrder(ctx, raw, func(order *models.ChannelOrder) {
		order.FinancialStatus = "cancelled"
		order.FulfillmentStatus = "cancelled"
		if order.CancelledAt == nil {
			at := meta.ReceivedAt
			order.CancelledAt = &at
		}
	})
	return err
}

func (s *Service) upsertOrder(ctx context.Context, raw []byte, mutate func(*models.ChannelOrder)) (*models.ChannelOrder, error) {
	payload, err := decode[orderPayload](raw)
	if err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id missing")
	}

	order := &models.ChannelOrder{
		ExternalID:        payload.ID.String(),
		OrderNumber:       payload.OrderNumber.String(),
		Email:             payload.Email,
		FinancialStatus:   derefOr(payload.FinancialStatus, ""),
		FulfillmentStatus: derefOr(payload.FulfillmentStatus, ""),
		TotalPrice:        payload.TotalPrice.Decimal,
		Currency:          payload.Currency,
		CancelledAt:       payload.CancelledAt,
		Payload:           json.RawMessage(raw),
	}
	if order.OrderNumber == "" {
		order.OrderNumber = payload.Name
	}
	if payload.Customer != nil && payload.Customer.ID != "" {
		id := payload.Customer.ID.String()
		order.CustomerExternalID = &id
	}
	if mutate != nil {
		mutate(order)
	}

	if err := s.repo.UpsertOrder(ctx, order); err != nil {
		return nil, storeError(err, "upsert channel order")
	}
	return order, nil
}

func (s *Service) handleProductSync(ctx context.Context, raw []byte, _ Meta) error {
	payload, err := decode[productPayload](raw)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id missing")
	}
	product := &models.ChannelProduct{
		ExternalID:  payload.ID.String(),
		Title:       payload.Title,
		Handle:      payload.Handle,
		Vendor:      payload.Vendor,
		ProductType: payload.ProductType,
		Status:      payload.Status,
		Tags:        splitTags(payload.Tags),
		IsActive:    true,
		Payload:     json.RawMessage(raw),
	}
	if err := s.repo.UpsertProduct(ctx, product); err != nil {
		return storeError(err, "upsert channel product")
	}
	return nil
}

func (s *Service) handleProductDelete(ctx context.Context, raw []byte, _ Meta) error {
	payload, err := decode[productPayload](raw)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id missing")
	}
	rows, err := s.repo.DeactivateProduct(ctx, payload.ID.String())
	if err != nil {
		return storeError(err, "deactivate channel product")
	}
	if rows == 0 {
		s.logger.Info(ctx, "product delete for unknown product "+payload.ID.String())
	}
	return nil
}

func (s *Service) handleCustomerSync(ctx context.Context, raw []byte, _ Meta) error {
	payload, err := decode[customerPayload](raw)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id missing")
	}
	customer := &models.ChannelCustomer{
		ExternalID:       payload.ID.String(),
		Email:            payload.Email,
		FirstName:        payload.FirstName,
		LastName:         payload.LastName,
		Phone:            derefOr(payload.Phone, ""),
		AcceptsMarketing: payload.AcceptsMarketing,
		TotalSpent:       payload.TotalSpent.Decimal,
		OrdersCount:      payload.OrdersCount,
		Payload:          json.RawMessage(raw),
	}
	if err := s.repo.UpsertCustomer(ctx, customer); err != nil {
		return storeError(err, "upsert channel customer")
	}
	return nil
}

// handleInventoryLevel feeds the channel's absolute quantity into the sync
// engine. Replays set the same value again, so they cannot double-apply.
func (s *Service) handleInventoryLevel(ctx context.Context, raw []byte, _ Meta) error {
	payload, err := decode[inventoryLevelPayload](raw)
	if err != nil {
		return err
	}
	if payload.InventoryItemID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "inventory_item_id missing")
	}
	itemID := payload.InventoryItemID.String()
	ctx = s.logger.WithItemID(ctx, itemID)
	if payload.Available == nil {
		s.logger.Warn(ctx, "inventory level without available quantity, skipping")
		return nil
	}

	qty := *payload.Available
	notes := "Inventory level update from channel"
	if qty < 0 {
		notes = fmt.Sprintf("Inventory level update from channel (clamped from %d)", qty)
		qty = 0
	}

	input := inventory.ApplyQuantityInput{
		ItemID:   itemID,
		Quantity: qty,
		Source:   enums.SyncSourceChannel,
		Notes:    notes,
	}
	if payload.LocationID != "" {
		location := payload.LocationID.String()
		input.LocationID = &location
	}

	_, err = s.inventory.ApplyQuantity(ctx, input)
	if err != nil {
		var typed *pkgerrors.Error
		if errors.As(err, &typed) {
			return err
		}
		return storeError(err, "apply channel inventory level")
	}
	return nil
}
