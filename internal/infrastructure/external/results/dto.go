// Package results implements the client for the external results pipeline,
// the upstream feed of candidate runs. The pipeline is an unofficial,
// rate-limited API: the client wraps it with a token-bucket rate limiter,
// a circuit breaker, and retries.
package results

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// RunDTO is one candidate run as published by the results pipeline.
type RunDTO struct {
	ID           string    `json:"id"`
	PlayerName   string    `json:"player_name"`
	CoPlayerName string    `json:"co_player_name,omitempty"`
	BoardKind    string    `json:"board_kind"`
	CategoryRef  string    `json:"category_ref"`
	CategoryName string    `json:"category_name,omitempty"`
	PlatformRef  string    `json:"platform_ref"`
	PlatformName string    `json:"platform_name,omitempty"`
	LevelRef     string    `json:"level_ref,omitempty"`
	Mode         string    `json:"mode"`
	Time         string    `json:"time"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Verified     bool      `json:"verified"`
	Obsolete     bool      `json:"obsolete"`
}

// RunsResponseDTO is the paged envelope around a runs fetch.
type RunsResponseDTO struct {
	Runs    []RunDTO `json:"runs"`
	HasMore bool     `json:"has_more"`
	Total   int      `json:"total"`
}

// APIErrorDTO is the pipeline's error envelope.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("results api error %s: %s", e.Code, e.Message)
}

// IsServerError reports whether the error is on the provider's side and
// worth retrying.
func (e *APIErrorDTO) IsServerError() bool {
	return e.Code == "SERVER_ERROR" || e.Code == "TEMPORARILY_UNAVAILABLE"
}
