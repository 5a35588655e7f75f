package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moysklad_sync/pkg/moysklad"
)

// ServiceError is a sentinel error of the sync engine.
type ServiceError string

func (e ServiceError) Error() string { return string(e) }

const (
	ErrSyncInProgress ServiceError = "sync_in_progress: another synchronization of this kind is running"
	ErrSyncDisabled   ServiceError = "sync_disabled: this synchronization is disabled in settings"
	ErrNoPositions    ServiceError = "no_positions: none of the order lines could be matched to a remote product"
	ErrStopped        ServiceError = "stopped_by_user: synchronization stopped"
	ErrNotImplemented ServiceError = "not_implemented"

	ErrWebhookDisabled  ServiceError = "webhook_disabled: webhooks are disabled in settings"
	ErrUnhandledWebhook ServiceError = "unhandled_webhook: no supported events in payload"
)

// SyncStats counts per-item outcomes of a bulk pass.
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SyncResult is the terminal result of a bulk pass. Per-item failures are
// counted, never returned as errors.
type SyncResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	Stats         SyncStats `json:"stats"`
	ExecutionTime float64   `json:"execution_time,omitempty"`
	Stopped       bool      `json:"stopped,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
}

func stoppedResult(sess *Session, stats SyncStats) *SyncResult {
	r := &SyncResult{
		Success: true,
		Message: "synchronization stopped by user",
		Stats:   stats,
		Stopped: true,
	}
	if sess != nil {
		r.SessionID = sess.ID
	}
	return r
}

// failureMessage renders err with the remote HTTP status when there is one.
func failureMessage(err error) string {
	var apiErr *moysklad.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (response code: %d)", apiErr.Message, apiErr.StatusCode)
	}
	return err.Error()
}

// Outcome is the result of processing one remote product.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

func (s *SyncStats) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Sleeper pauses between remote calls. Tests replace it to avoid real waits.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
