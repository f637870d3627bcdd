package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/inventory-sync/api/responses"
	channelwebhook "github.com/angelmondragon/inventory-sync/internal/webhooks/channel"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

const (
	HeaderSignature  = "X-Channel-Hmac-Sha256"
	HeaderTopic      = "X-Channel-Topic"
	HeaderWebhookID  = "X-Channel-Webhook-Id"
	HeaderShopDomain = "X-Channel-Shop-Domain"

	maxWebhookBodyBytes = 1 << 20
)

type ChannelWebhookService interface {
	Handle(ctx context.Context, raw []byte, signature, topic string, meta channelwebhook.Meta) channelwebhook.AckResult
}

type ackResponse struct {
	Status    string `json:"status"`
	Topic     string `json:"topic"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// ChannelWebhook is the gateway for the sales channel. The signature is the
// only authentication, so it must be checked against the untouched body.
func ChannelWebhook(svc ChannelWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result := svc.Handle(ctx, raw,
			strings.TrimSpace(r.Header.Get(HeaderSignature)),
			r.Header.Get(HeaderTopic),
			channelwebhook.Meta{
				DeliveryID: strings.TrimSpace(r.Header.Get(HeaderWebhookID)),
				ShopDomain: strings.TrimSpace(r.Header.Get(HeaderShopDomain)),
				ReceivedAt: time.Now().UTC(),
			})

		if result.Status != channelwebhook.AckAccepted {
			// the service already logged the outcome
			responses.WriteError(ctx, nil, w, ackError(result))
			return
		}
		responses.WriteSuccess(w, ackResponse{
			Status:    string(result.Status),
			Topic:     result.Topic,
			Duplicate: result.Duplicate,
			Ignored:   result.Ignored,
		})
	}
}

// ackError keeps the response status aligned with AckResult.HTTPStatus.
func ackError(result channelwebhook.AckResult) error {
	switch result.HTTPStatus() {
	case http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, result.Err, "invalid webhook signature")
	case http.StatusBadRequest:
		msg := "invalid webhook payload"
		if typed := pkgerrors.As(result.Err); typed != nil && typed.Message() != "" {
			msg = typed.Message()
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, result.Err, msg)
	case http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, result.Err, "delivery is still being processed")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Err, "webhook processing failed")
	}
}
