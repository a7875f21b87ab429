package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/ecommerce/pkg/config"
)

// PricingTotals 定价结果
type PricingTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string
}

// PricingPolicy 定价策略，根据商品小计计算税费、运费与优惠
type PricingPolicy interface {
	Price(subtotal decimal.Decimal) PricingTotals
}

// StandardPricing 标准定价：按固定税率计税，小计达到免邮门槛则免运费
type StandardPricing struct {
	taxRate       decimal.Decimal
	flatShipping  decimal.Decimal
	freeThreshold decimal.Decimal
	currency      string
}

// NewStandardPricing 从配置创建标准定价策略
func NewStandardPricing(cfg config.PricingConfig) *StandardPricing {
	return &StandardPricing{
		taxRate:       decimal.NewFromFloat(cfg.TaxRate),
		flatShipping:  decimal.NewFromFloat(cfg.FlatShipping),
		freeThreshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
		currency:      cfg.Currency,
	}
}

// Price 计算订单金额，保证 total = subtotal + tax + shipping - discount
func (p *StandardPricing) Price(subtotal decimal.Decimal) PricingTotals {
	tax := subtotal.Mul(p.taxRate).Round(2)

	shipping := p.flatShipping
	if p.freeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.freeThreshold) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero

	return PricingTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingFee:    shipping,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Add(shipping).Sub(discount),
		Currency:       p.currency,
	}
}
