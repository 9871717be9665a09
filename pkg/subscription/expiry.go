package subscription

import "time"

const day = 24 * time.Hour

// Policy holds the grace and reminder cadence applied to unpaid periods.
type Policy struct {
	GracePeriodDays         int
	ReminderDaysAfterExpiry int
}

func DefaultPolicy() Policy {
	return Policy{
		GracePeriodDays:         7,
		ReminderDaysAfterExpiry: 1,
	}
}

func (p Policy) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodDays) * day
}

// ExpiryState is the derived payment state of a billing period.
type ExpiryState struct {
	WaitingPayment bool
	ExpiryAt       time.Time
	Expired        bool
}

// Evaluate derives the expiry state of a period ending at periodEnd. It has
// no side effects.
func (p Policy) Evaluate(periodEnd, now time.Time) ExpiryState {
	expiryAt := periodEnd.Add(p.GracePeriod())
	waiting := now.After(periodEnd)
	return ExpiryState{
		WaitingPayment: waiting,
		ExpiryAt:       expiryAt,
		Expired:        waiting && !now.Before(expiryAt),
	}
}

// ReminderDue reports whether another payment reminder may be sent given the
// time of the previous one.
func (p Policy) ReminderDue(lastSent *time.Time, now time.Time) bool {
	if lastSent == nil {
		return true
	}
	return now.Sub(*lastSent) >= time.Duration(p.ReminderDaysAfterExpiry)*day
}
