// Package stripe 实现基于 Stripe 的支付渠道
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/wyfcoding/ecommerce/internal/payment/domain"
)

// 订单号存放在支付渠道的元数据里，webhook 回来时据此找到订单
const metadataOrderNumber = "order_number"

// Provider Stripe 支付渠道实现
type Provider struct {
	sc            *client.API
	webhookSecret string
}

// New 创建 Stripe 渠道
func New(apiKey, webhookSecret string) *Provider {
	sc := client.New(apiKey, nil)
	return &Provider{sc: sc, webhookSecret: webhookSecret}
}

// RetrievePayment 主动查询一笔 PaymentIntent 的最终状态
func (p *Provider) RetrievePayment(ctx context.Context, paymentIntentID string) (*domain.Event, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.sc.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	return eventFromIntent(intent, "sync:"+intent.ID)
}

// ParseWebhook 校验 Stripe 签名并把 webhook 转换为支付事件，
// 本服务不关心的事件类型返回 (nil, nil)
func (p *Provider) ParseWebhook(payload []byte, header http.Header) (*domain.Event, error) {
	event, err := webhook.ConstructEvent(payload, header.Get("Stripe-Signature"), p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe: invalid webhook signature: %w", err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("stripe: parse payment intent: %w", err)
		}
		return eventFromIntent(&intent, event.ID)
	case "charge.refunded":
		var charge stripeapi.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("stripe: parse charge: %w", err)
		}
		reference := charge.ID
		if charge.PaymentIntent != nil {
			reference = charge.PaymentIntent.ID
		}
		return &domain.Event{
			EventID:     event.ID,
			OrderNumber: charge.Metadata[metadataOrderNumber],
			Outcome:     domain.OutcomeRefunded,
			Reference:   reference,
		}, nil
	default:
		return nil, nil
	}
}

func eventFromIntent(intent *stripeapi.PaymentIntent, eventID string) (*domain.Event, error) {
	e := &domain.Event{
		EventID:     eventID,
		OrderNumber: intent.Metadata[metadataOrderNumber],
		Reference:   intent.ID,
	}
	switch intent.Status {
	case stripeapi.PaymentIntentStatusSucceeded:
		e.Outcome = domain.OutcomeSucceeded
	case stripeapi.PaymentIntentStatusCanceled, stripeapi.PaymentIntentStatusRequiresPaymentMethod:
		e.Outcome = domain.OutcomeFailed
		if intent.LastPaymentError != nil {
			e.FailureReason = intent.LastPaymentError.Msg
		}
	default:
		return nil, fmt.Errorf("stripe: payment intent %s not settled: %s", intent.ID, intent.Status)
	}
	return e, nil
}
