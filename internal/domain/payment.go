package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusActive        PaymentStatus = "active"
	PaymentStatusChargePending PaymentStatus = "charge_pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusExpired       PaymentStatus = "expired"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusActive, PaymentStatusChargePending, PaymentStatusPaid, PaymentStatusExpired:
		return true
	}
	return false
}

// Payment is one tithe obligation of a user for a billing period.
// Value is expressed in cents, like the charge provider does.
type Payment struct {
	ID            string
	UserID        string
	Year          int
	Month         Month
	Value         *int64
	Identifier    *string
	CorrelationID *string
	Status        PaymentStatus
	Date          *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewPayment(id, userID string, period Period) *Payment {
	now := time.Now()
	return &Payment{
		ID:        id,
		UserID:    userID,
		Year:      period.Year,
		Month:     period.Month,
		Status:    PaymentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Payment) Period() Period {
	return Period{Month: p.Month, Year: p.Year}
}

func (p *Payment) HasCharge() bool {
	return p.CorrelationID != nil && *p.CorrelationID != ""
}

// CanRequestCharge enforces the terminal states of the lifecycle.
func (p *Payment) CanRequestCharge() error {
	switch p.Status {
	case PaymentStatusPaid:
		return ErrAlreadyPaid
	case PaymentStatusExpired:
		return ErrPaymentExpired
	}
	return nil
}

// PaymentUpdate is a partial update. Nil fields are left untouched and the
// Clear flags set the matching column to NULL. An invalid Status is ignored
// while the remaining fields are still applied.
type PaymentUpdate struct {
	Status        *PaymentStatus
	CorrelationID *string
	Value         *int64
	Identifier    *string
	Date          *time.Time

	ClearCorrelationID bool
	ClearValue         bool
	ClearDate          bool
}

// Assignment is one column change of a partial update. A nil Value sets the
// column to NULL.
type Assignment struct {
	Column string
	Value  any
}

// Assignments lists the column changes u makes, in column order. It is the
// single definition of the merge: the store renders it as SQL and Apply
// replays it in memory.
func (u PaymentUpdate) Assignments() []Assignment {
	var out []Assignment
	if u.Status != nil && u.Status.Valid() {
		out = append(out, Assignment{"status", *u.Status})
	}
	switch {
	case u.ClearCorrelationID:
		out = append(out, Assignment{"correlation_id", nil})
	case u.CorrelationID != nil:
		out = append(out, Assignment{"correlation_id", *u.CorrelationID})
	}
	switch {
	case u.ClearValue:
		out = append(out, Assignment{"value", nil})
	case u.Value != nil:
		out = append(out, Assignment{"value", *u.Value})
	}
	if u.Identifier != nil {
		out = append(out, Assignment{"identifier", *u.Identifier})
	}
	switch {
	case u.ClearDate:
		out = append(out, Assignment{"date", nil})
	case u.Date != nil:
		out = append(out, Assignment{"date", *u.Date})
	}
	return out
}

// Apply merges the update into p and reports whether anything changed.
func (u PaymentUpdate) Apply(p *Payment) bool {
	changes := u.Assignments()
	for _, a := range changes {
		switch a.Column {
		case "status":
			p.Status = a.Value.(PaymentStatus)
		case "correlation_id":
			p.CorrelationID = stringValue(a.Value)
		case "value":
			if v, ok := a.Value.(int64); ok {
				p.Value = &v
			} else {
				p.Value = nil
			}
		case "identifier":
			p.Identifier = stringValue(a.Value)
		case "date":
			if v, ok := a.Value.(time.Time); ok {
				p.Date = &v
			} else {
				p.Date = nil
			}
		}
	}
	if len(changes) == 0 {
		return false
	}
	p.UpdatedAt = time.Now()
	return true
}

func stringValue(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// DiscardChargeUpdate reverts a payment to active so a fresh charge can be issued.
func DiscardChargeUpdate() PaymentUpdate {
	status := PaymentStatusActive
	return PaymentUpdate{
		Status:             &status,
		ClearCorrelationID: true,
		ClearValue:         true,
		ClearDate:          true,
	}
}

type Month string

const (
	January   Month = "january"
	February  Month = "february"
	March     Month = "march"
	April     Month = "april"
	May       Month = "may"
	June      Month = "june"
	July      Month = "july"
	August    Month = "august"
	September Month = "september"
	October   Month = "october"
	November  Month = "november"
	December  Month = "december"
)

var months = [...]Month{January, February, March, April, May, June, July, August, September, October, November, December}

// ParseMonth accepts a month label ("march", "March") or its number ("3", "03").
func ParseMonth(s string) (Month, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return "", NewValidationError("month", fmt.Sprintf("%d is out of range", n))
		}
		return months[n-1], nil
	}
	for _, m := range months {
		if string(m) == s {
			return m, nil
		}
	}
	return "", NewValidationError("month", fmt.Sprintf("unknown month %q", s))
}

func MonthOf(m time.Month) Month {
	return months[m-1]
}

func (m Month) Number() int {
	for i, candidate := range months {
		if candidate == m {
			return i + 1
		}
	}
	return 0
}

// Period identifies a billing period.
type Period struct {
	Month Month
	Year  int
}

func NewPeriod(month string, year int) (Period, error) {
	m, err := ParseMonth(month)
	if err != nil {
		return Period{}, err
	}
	if year < 2000 || year > 9999 {
		return Period{}, NewValidationError("year", fmt.Sprintf("%d is out of range", year))
	}
	return Period{Month: m, Year: year}, nil
}

func PeriodOf(t time.Time) Period {
	return Period{Month: MonthOf(t.Month()), Year: t.Year()}
}

func (p Period) Next() Period {
	n := p.Month.Number()
	if n == 12 {
		return Period{Month: January, Year: p.Year + 1}
	}
	return Period{Month: months[n], Year: p.Year}
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month.Number())
}
