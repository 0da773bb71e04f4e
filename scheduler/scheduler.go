package scheduler

// Package scheduler provides scheduled job management for the stablewatch
// backend. It handles:
// - Hourly volatility tracking passes
//
// The scheduler is implemented in jobs.go
