// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClasses(t *testing.T) {
	if !IsRetryable(fmt.Errorf("rpc: %w", ErrTransient)) {
		t.Fatalf("wanted transient error to be retryable")
	}
	if !IsRetryable(errors.New("connection reset by peer")) {
		t.Fatalf("wanted unclassified error to be retryable")
	}
	if IsRetryable(fmt.Errorf("bad mint: %w", ErrPermanent)) {
		t.Fatalf("wanted permanent error to be not retryable")
	}
	if IsRetryable(fmt.Errorf("swap: %w", ErrInsufficientFunds)) {
		t.Fatalf("wanted insufficient funds to be not retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("wanted context cancellation to be not retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("wanted nil to be not retryable")
	}
}

func TestDirection(t *testing.T) {
	if SELL.Opposite() != BUY || BUY.Opposite() != SELL {
		t.Fatalf("wanted SELL and BUY to be opposites")
	}
	if err := Direction("HOLD").Check(); err == nil {
		t.Fatalf("wanted non-nil error for invalid direction")
	}
}
