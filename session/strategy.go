// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

type Strategy string

const (
	Slow   Strategy = "Slow"
	Medium Strategy = "Medium"
	Fast   Strategy = "Fast"
)

// Interval is a closed range of delays between two trades of a wallet.
type Interval struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a uniformly random duration from the interval.
func (v Interval) Draw() time.Duration {
	if v.Max <= v.Min {
		return v.Min
	}
	return v.Min + rand.N(v.Max-v.Min+1)
}

// Delays maps each strategy to its delay interval.
type Delays map[Strategy]Interval

func DefaultDelays() Delays {
	return Delays{
		Slow:   {Min: 120 * time.Second, Max: 300 * time.Second},
		Medium: {Min: 60 * time.Second, Max: 180 * time.Second},
		Fast:   {Min: 30 * time.Second, Max: 90 * time.Second},
	}
}

func (d Delays) Check() error {
	for _, s := range []Strategy{Slow, Medium, Fast} {
		v, ok := d[s]
		if !ok {
			return fmt.Errorf("delay interval for strategy %s is missing", s)
		}
		if v.Min <= 0 || v.Max < v.Min {
			return fmt.Errorf("invalid delay interval [%v, %v] for strategy %s", v.Min, v.Max, s)
		}
	}
	return nil
}

// ParseStrategy parses a strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "slow":
		return Slow, nil
	case "medium":
		return Medium, nil
	case "fast":
		return Fast, nil
	}
	return "", fmt.Errorf("invalid strategy %q (want slow, medium or fast)", s)
}
