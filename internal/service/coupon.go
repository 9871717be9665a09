package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/pkg/gateway"
)

type CouponService struct {
	deps *Deps
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponHoldPeriod is how long an unpaid order keeps its coupon code
// reserved. It matches the lifetime of a gateway checkout session.
const CouponHoldPeriod = 24 * time.Hour

// Lookup returns a coupon code that customerID can use. A code reserved by
// an unpaid order of the same customer, or by an unpaid order older than
// CouponHoldPeriod, counts as available.
func (s *CouponService) Lookup(ctx context.Context, code string, customerID uint) (*model.CouponCode, error) {
	cc, err := s.deps.Store.GetCouponCode(ctx, NormalizeCouponCode(code))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCouponUnavailable
	}
	if err != nil {
		return nil, err
	}
	switch cc.Status {
	case model.CouponUnused:
		return cc, nil
	case model.CouponReserved:
		ok, err := s.reclaimable(ctx, cc, customerID)
		if err != nil {
			return nil, err
		}
		if ok {
			return cc, nil
		}
	}
	return nil, ErrCouponUnavailable
}

func (s *CouponService) reclaimable(ctx context.Context, cc *model.CouponCode, customerID uint) (bool, error) {
	if cc.OrderID == nil {
		return false, nil
	}
	holder, err := s.deps.Store.GetOrder(ctx, *cc.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if holder.Status != model.OrderWaitingPayment || holder.SubscriptionID != nil {
		return false, nil
	}
	return holder.CustomerID == customerID || s.holdExpired(holder), nil
}

func (s *CouponService) holdExpired(order *model.SalesOrder) bool {
	return !order.CreatedAt.IsZero() && s.deps.Now().Sub(order.CreatedAt) > CouponHoldPeriod
}

// Reserve holds the code for order and returns the discount it grants. A
// reclaimable reservation of another order is released first.
func (s *CouponService) Reserve(ctx context.Context, code string, order *model.SalesOrder) (*gateway.Discount, error) {
	cc, err := s.Lookup(ctx, code, order.CustomerID)
	if err != nil {
		return nil, err
	}
	if cc.Status == model.CouponReserved {
		if *cc.OrderID == order.ID {
			return DiscountFor(cc), nil
		}
		if !s.Release(ctx, cc.Code, *cc.OrderID) {
			return nil, ErrCouponUnavailable
		}
	}
	ok, err := s.deps.Store.ReserveCouponCode(ctx, cc.Code, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reserve coupon code: %w", err)
	}
	if !ok {
		return nil, ErrCouponUnavailable
	}
	return DiscountFor(cc), nil
}

// Release returns a code reserved by orderID to unused.
func (s *CouponService) Release(ctx context.Context, code string, orderID uint) bool {
	code = NormalizeCouponCode(code)
	if code == "" {
		return false
	}
	ok, err := s.deps.Store.ReleaseCouponCode(ctx, code, orderID)
	if err != nil {
		log.Errorf("[Coupon] release %s from order %d: %v", code, orderID, err)
		return false
	}
	if ok {
		log.Infof("[Coupon] %s released by order %d", code, orderID)
	}
	return ok
}

// Consume marks the code used by orderID. A code already consumed is left
// untouched.
func (s *CouponService) Consume(ctx context.Context, code string, orderID uint) bool {
	code = NormalizeCouponCode(code)
	if code == "" {
		return false
	}
	ok, err := s.deps.Store.ConsumeCouponCode(ctx, code, orderID, s.deps.Now())
	if err != nil {
		log.Errorf("[Coupon] consume %s for order %d: %v", code, orderID, err)
		return false
	}
	if ok {
		log.Infof("[Coupon] %s consumed by order %d", code, orderID)
	}
	return ok
}

func DiscountFor(cc *model.CouponCode) *gateway.Discount {
	d := &gateway.Discount{
		Code:       cc.Code,
		Amount:     cc.Coupon.DiscountAmount,
		Percentage: cc.Coupon.DiscountPercentage,
		Currency:   cc.Coupon.Currency,
	}
	if cc.Coupon.DurationMonths > 0 {
		months := cc.Coupon.DurationMonths
		d.DurationMonths = &months
	}
	return d
}

// ApplyDiscount returns price after the discount, never below zero. A fixed
// amount in another currency is ignored.
func ApplyDiscount(price int64, currency string, d *gateway.Discount) int64 {
	if d == nil {
		return price
	}
	out := price
	switch {
	case d.Amount != nil && (d.Currency == "" || strings.EqualFold(d.Currency, currency)):
		out = price - *d.Amount
	case d.Percentage != nil:
		out = price - int64(math.Round(float64(price)*(*d.Percentage)/100))
	}
	if out < 0 {
		return 0
	}
	return out
}
