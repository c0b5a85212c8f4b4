package domain

import "time"

type ReconciliationJobStatus string

const (
	ReconciliationPending    ReconciliationJobStatus = "PENDING"
	ReconciliationProcessing ReconciliationJobStatus = "PROCESSING"
	ReconciliationDone       ReconciliationJobStatus = "DONE"
	ReconciliationFailed     ReconciliationJobStatus = "FAILED"
)

// ReconciliationJob is a persisted deferred check of one issued charge.
type ReconciliationJob struct {
	ID            string
	PaymentID     string
	CorrelationID string
	Status        ReconciliationJobStatus
	DueAt         time.Time
	Attempts      int
	LastError     *string
	LockedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewReconciliationJob(id, paymentID, correlationID string, dueAt time.Time) *ReconciliationJob {
	now := time.Now()
	return &ReconciliationJob{
		ID:            id,
		PaymentID:     paymentID,
		CorrelationID: correlationID,
		Status:        ReconciliationPending,
		DueAt:         dueAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
