// Copyright (c) 2025 BVK Chaitanya

package api

import "github.com/shopspring/decimal"

const (
	AdminStatsPath    = "/volumebot/admin/stats"
	AdminSweepAllPath = "/volumebot/admin/sweep-all"
	AdminRecoverPath  = "/volumebot/admin/recover"
)

type AdminStatsRequest struct {
}

type AdminStatsResponse struct {
	TotalUsers     int
	TotalSessions  int
	ActiveSessions int

	// RunningSessions is the number of sessions scheduled in this process.
	RunningSessions int
}

type AdminSweepAllRequest struct {
}

type AdminSweepAllResponse struct {
	Attempted int
	Succeeded int
	Failed    int

	MovedBase  decimal.Decimal
	MovedAsset decimal.Decimal

	// Failures holds a diagnostic per failed session.
	Failures map[string]string
}

type AdminRecoverRequest struct {
	SessionID   string
	Destination string
}

type AdminRecoverResponse struct {
	OK bool

	MovedBase  decimal.Decimal
	MovedAsset decimal.Decimal

	Report string
}
