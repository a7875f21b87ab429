package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrStaleTransition 状态已被并发修改，本次迁移未生效
	ErrStaleTransition = errors.New("order status changed concurrently")
)

// InvalidTransitionError 非法状态迁移
type InvalidTransitionError struct {
	OrderNumber string
	From        OrderStatus
	To          OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderNumber, e.From, e.To)
}

// NotCancellableError 订单当前状态不允许取消
type NotCancellableError struct {
	OrderNumber string
	Status      OrderStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order %s: cannot cancel in status %s", e.OrderNumber, e.Status)
}

// UnavailableItem 结算失败的商品行
type UnavailableItem struct {
	ProductID uint   `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// CheckoutUnavailableError 结算失败，携带全部不可用商品行而非只报第一个
type CheckoutUnavailableError struct {
	Unavailable []UnavailableItem
}

func (e *CheckoutUnavailableError) Error() string {
	return fmt.Sprintf("checkout unavailable: %d item(s) cannot be fulfilled", len(e.Unavailable))
}
