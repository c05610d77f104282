package cron

import (
	"context"
	"errors"
	"testing"
)

type fakeSweeper struct {
	processed int
	err       error
	calls     int
}

func (s *fakeSweeper) ProcessExpiredReservations(context.Context) (int, error) {
	s.calls++
	return s.processed, s.err
}

func (s *fakeSweeper) ProcessOverdueLoans(context.Context) (int, error) {
	s.calls++
	return s.processed, s.err
}

func TestReservationExpiryJob(t *testing.T) {
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: cronTestLogger()}); err == nil {
		t.Fatal("expected error without ledger")
	}

	sweeper := &fakeSweeper{processed: 3}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger: cronTestLogger(),
		Ledger: sweeper,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "reservation-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sweeper.calls)
	}

	sweeper.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("sweep failures must surface")
	}
}

func TestOverdueFeesJob(t *testing.T) {
	if _, err := NewOverdueFeesJob(OverdueFeesJobParams{Logger: cronTestLogger()}); err == nil {
		t.Fatal("expected error without ledger")
	}

	sweeper := &fakeSweeper{processed: 2}
	job, err := NewOverdueFeesJob(OverdueFeesJobParams{
		Logger: cronTestLogger(),
		Ledger: sweeper,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "overdue-fees" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sweeper.calls)
	}
}
