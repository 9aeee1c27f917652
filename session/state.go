// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"errors"
	"fmt"
	"slices"
)

type State string

const (
	AwaitingDeposit State = "AwaitingDeposit"
	Distributing    State = "Distributing"
	Trading         State = "Trading"
	Paused          State = "Paused"
	Withdrawing     State = "Withdrawing"
	Closed          State = "Closed"
	Failed          State = "Failed"
)

var (
	// ErrTerminal is returned for any attempt to act on a closed or failed
	// session.
	ErrTerminal = errors.New("session is in a terminal state")

	// ErrInvalidTransition is returned when the requested state is not
	// reachable from the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrInsufficientFunds is the failure reason when a deposit never arrives.
	ErrInsufficientFunds = errors.New("InsufficientFunds")
)

var edges = map[State][]State{
	AwaitingDeposit: {Distributing, Failed},
	Distributing:    {Trading, Failed},
	Trading:         {Paused, Withdrawing, Failed},
	Paused:          {Trading, Withdrawing, Failed},
	Withdrawing:     {Closed, Failed},
}

func (s State) IsTerminal() bool {
	return s == Closed || s == Failed
}

// IsActive returns true for sessions with funds in the sub-wallets.
func (s State) IsActive() bool {
	return s == Trading || s == Paused
}

func (s State) Check() error {
	if s == Closed || s == Failed {
		return nil
	}
	if _, ok := edges[s]; !ok {
		return fmt.Errorf("invalid session state %q", string(s))
	}
	return nil
}

// CanTransition returns nil if the session state machine has an edge from
// the current state to the next.
func CanTransition(from, to State) error {
	if from.IsTerminal() {
		return fmt.Errorf("cannot move from %s to %s: %w", from, to, ErrTerminal)
	}
	if !slices.Contains(edges[from], to) {
		return fmt.Errorf("cannot move from %s to %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}
