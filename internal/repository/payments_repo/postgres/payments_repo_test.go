package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"dizimo/internal/domain"
	"dizimo/internal/infrastructure/database/dbtest"
)

var rowTime = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func paymentRow(id string, status domain.PaymentStatus, correlationID any) dbtest.Result {
	return dbtest.Result{
		Columns: strings.Split(paymentColumns, ", "),
		Rows: [][]driver.Value{
			{id, "u1", int64(2024), "march", nil, nil, correlationID, string(status), nil, rowTime, rowTime},
		},
	}
}

func TestPaymentRepository_UpdateTx(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()

	t.Run("Given an invalid status with other fields When UpdateTx Then only the valid columns are set", func(t *testing.T) {
		// Given
		db, rec := dbtest.Open(t)
		rec.Reply(paymentRow("p1", domain.PaymentStatusActive, nil))
		bogus := domain.PaymentStatus("refunded")
		ident := "ref-1"

		// When
		payment, err := repo.UpdateTx(ctx, db, "p1", domain.PaymentUpdate{Status: &bogus, Identifier: &ident})

		// Then
		if err != nil {
			t.Fatalf("UpdateTx() error = %v", err)
		}
		call := rec.Last(t)
		wantPrefix := "UPDATE dizimo_payments SET identifier = $1, updated_at = $2 WHERE id = $3 RETURNING "
		if !strings.HasPrefix(call.Query, wantPrefix) {
			t.Errorf("query = %q, want prefix %q", call.Query, wantPrefix)
		}
		if call.Args[0] != "ref-1" || call.Args[2] != "p1" {
			t.Errorf("args = %v", call.Args)
		}
		if payment.Status != domain.PaymentStatusActive {
			t.Errorf("status = %q, want active", payment.Status)
		}
	})

	t.Run("Given a discard update When UpdateTx Then the charge columns are set to NULL", func(t *testing.T) {
		// Given
		db, rec := dbtest.Open(t)
		rec.Reply(paymentRow("p1", domain.PaymentStatusActive, nil))

		// When
		payment, err := repo.UpdateTx(ctx, db, "p1", domain.DiscardChargeUpdate())

		// Then
		if err != nil {
			t.Fatalf("UpdateTx() error = %v", err)
		}
		call := rec.Last(t)
		wantPrefix := "UPDATE dizimo_payments SET status = $1, correlation_id = $2, value = $3, date = $4, updated_at = $5 WHERE id = $6"
		if !strings.HasPrefix(call.Query, wantPrefix) {
			t.Errorf("query = %q, want prefix %q", call.Query, wantPrefix)
		}
		if !reflect.DeepEqual(call.Args[:4], []driver.Value{"active", nil, nil, nil}) {
			t.Errorf("args = %v", call.Args[:4])
		}
		if payment.CorrelationID != nil || payment.Value != nil || payment.Date != nil {
			t.Errorf("payment = %+v", payment)
		}
	})

	t.Run("Given a correlation id and a value When UpdateTx Then both are bound in column order", func(t *testing.T) {
		db, rec := dbtest.Open(t)
		rec.Reply(paymentRow("p1", domain.PaymentStatusChargePending, "corr-1"))
		pending := domain.PaymentStatusChargePending
		corr := "corr-1"
		value := int64(5000)

		payment, err := repo.UpdateTx(ctx, db, "p1", domain.PaymentUpdate{Status: &pending, CorrelationID: &corr, Value: &value})

		if err != nil {
			t.Fatalf("UpdateTx() error = %v", err)
		}
		call := rec.Last(t)
		if !reflect.DeepEqual(call.Args[:3], []driver.Value{"charge_pending", "corr-1", int64(5000)}) {
			t.Errorf("args = %v", call.Args[:3])
		}
		if payment.CorrelationID == nil || *payment.CorrelationID != "corr-1" {
			t.Errorf("correlation id = %v, want corr-1", payment.CorrelationID)
		}
	})

	t.Run("Given an empty update When UpdateTx Then the row is read instead", func(t *testing.T) {
		db, rec := dbtest.Open(t)
		rec.Reply(paymentRow("p1", domain.PaymentStatusActive, nil))

		if _, err := repo.UpdateTx(ctx, db, "p1", domain.PaymentUpdate{}); err != nil {
			t.Fatalf("UpdateTx() error = %v", err)
		}
		call := rec.Last(t)
		if !strings.HasPrefix(call.Query, "SELECT ") || !strings.Contains(call.Query, "WHERE id = $1") {
			t.Errorf("query = %q, want a read by id", call.Query)
		}
	})

	t.Run("Given no matching row When UpdateTx Then ErrPaymentNotFound", func(t *testing.T) {
		db, _ := dbtest.Open(t)
		ident := "ref-1"

		_, err := repo.UpdateTx(ctx, db, "missing", domain.PaymentUpdate{Identifier: &ident})

		if !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Errorf("UpdateTx() error = %v, want ErrPaymentNotFound", err)
		}
	})
}

func TestPaymentRepository_MarkPaidTx(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()
	paidAt := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)

	t.Run("Given an unpaid payment When MarkPaidTx Then it reports the change", func(t *testing.T) {
		// Given
		db, rec := dbtest.Open(t)

		// When
		changed, err := repo.MarkPaidTx(ctx, db, "p1", 5000, paidAt)

		// Then
		if err != nil || !changed {
			t.Fatalf("MarkPaidTx() = %v, %v, want true", changed, err)
		}
		call := rec.Last(t)
		if !strings.Contains(call.Query, "WHERE id = $5 AND status <> $1") {
			t.Errorf("query = %q, want the not-yet-paid guard", call.Query)
		}
		if call.Args[0] != "paid" || call.Args[1] != int64(5000) || call.Args[2] != paidAt || call.Args[4] != "p1" {
			t.Errorf("args = %v", call.Args)
		}
	})

	t.Run("Given an already paid payment When MarkPaidTx Then nothing changes", func(t *testing.T) {
		db, rec := dbtest.Open(t)
		rec.Reply(dbtest.Result{RowsAffected: 0})

		changed, err := repo.MarkPaidTx(ctx, db, "p1", 5000, paidAt)

		if err != nil {
			t.Fatalf("MarkPaidTx() error = %v", err)
		}
		if changed {
			t.Error("MarkPaidTx() = true for a paid payment")
		}
	})
}

func TestPaymentRepository_CreateIfAbsentTx(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()
	payment := domain.NewPayment("p1", "u1", domain.Period{Month: domain.March, Year: 2024})

	cases := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new period", 1, true},
		{"period already open", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, rec := dbtest.Open(t)
			rec.Reply(dbtest.Result{RowsAffected: tc.affected})

			created, err := repo.CreateIfAbsentTx(ctx, db, payment)

			if err != nil {
				t.Fatalf("CreateIfAbsentTx() error = %v", err)
			}
			if created != tc.want {
				t.Errorf("created = %v, want %v", created, tc.want)
			}
			if call := rec.Last(t); !strings.Contains(call.Query, "ON CONFLICT (user_id, month, year) DO NOTHING") {
				t.Errorf("query = %q", call.Query)
			}
		})
	}
}

func TestPaymentRepository_GetByPeriodForUpdateTx(t *testing.T) {
	db, rec := dbtest.Open(t)
	rec.Reply(paymentRow("p1", domain.PaymentStatusActive, nil))

	payment, err := NewPaymentRepository().GetByPeriodForUpdateTx(context.Background(), db, "u1",
		domain.Period{Month: domain.March, Year: 2024})

	if err != nil {
		t.Fatalf("GetByPeriodForUpdateTx() error = %v", err)
	}
	if payment.Month != domain.March || payment.Year != 2024 {
		t.Errorf("payment = %+v", payment)
	}
	call := rec.Last(t)
	if !strings.HasSuffix(strings.TrimSpace(call.Query), "FOR UPDATE") {
		t.Errorf("query = %q, want a row lock", call.Query)
	}
	if !reflect.DeepEqual(call.Args, []driver.Value{"u1", "march", int64(2024)}) {
		t.Errorf("args = %v", call.Args)
	}
}
