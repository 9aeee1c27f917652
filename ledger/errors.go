// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"errors"
)

var (
	// ErrTransient is wrapped by gateway errors that are expected to go away
	// on retry (rpc timeouts, rate limits, stale blockhashes, etc.)
	ErrTransient = errors.New("transient gateway error")

	// ErrPermanent is wrapped by gateway errors that will not go away on
	// retry, like an invalid address or a delisted asset.
	ErrPermanent = errors.New("permanent gateway error")

	// ErrInsufficientFunds is returned when the signer cannot cover an amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// IsPermanent returns true if retrying the same operation cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrInsufficientFunds)
}

// IsRetryable returns true for errors that should be retried with back-off.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Is(err, ErrTransient)
	}
	return true
}
