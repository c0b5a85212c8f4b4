package domain

import "time"

const (
	AggregatePayment      = "payment"
	AggregateWarning      = "warning"
	AggregateNotification = "notification"

	EventPaymentPaid            = "payment.paid"
	EventPaymentChargeDiscarded = "payment.charge_discarded"
	EventWarningCreated         = "warning.created"
	EventNotificationRequested  = "notification.requested"
)

type PaymentPaidEvent struct {
	PaymentID   string    `json:"payment_id"`
	UserID      string    `json:"user_id"`
	CommunityID string    `json:"community_id"`
	Month       Month     `json:"month"`
	Year        int       `json:"year"`
	Value       int64     `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

type PaymentChargeDiscardedEvent struct {
	PaymentID    string       `json:"payment_id"`
	UserID       string       `json:"user_id"`
	Month        Month        `json:"month"`
	Year         int          `json:"year"`
	ChargeStatus ChargeStatus `json:"charge_status"`
	Timestamp    time.Time    `json:"timestamp"`
}

type WarningCreatedEvent struct {
	WarningID   string       `json:"warning_id"`
	CommunityID string       `json:"community_id"`
	Scope       WarningScope `json:"scope"`
	Title       string       `json:"title"`
	Timestamp   time.Time    `json:"timestamp"`
}

type NotificationRequestedEvent struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
}

// ChargeEvent is the provider webhook payload, also relayed through Kafka.
type ChargeEvent struct {
	EventID string `json:"eventId,omitempty"`
	Event   string `json:"event"`
	Charge  struct {
		CorrelationID string       `json:"correlationID"`
		Status        ChargeStatus `json:"status"`
	} `json:"charge"`
}
