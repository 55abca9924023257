package payroll

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

// BatchFailure reports why one payroll of a batch was not approved.
type BatchFailure struct {
	ID      uuid.UUID `json:"id"`
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

type BatchResult struct {
	Requested     int            `json:"requested"`
	ApprovedCount int            `json:"approved_count"`
	Approved      []uuid.UUID    `json:"approved"`
	Failures      []BatchFailure `json:"failures"`
}

// BatchApprove approves each id independently, in order of first
// occurrence. One item failing never affects another; only a missing
// capability fails the whole call.
func (e *Engine) BatchApprove(ctx context.Context, p principal.Principal, ids []uuid.UUID) (*BatchResult, error) {
	if !p.HasCapability(principal.CapPayrollApprove) {
		return nil, ErrForbidden
	}

	unique := dedupe(ids)
	result := &BatchResult{
		Requested: len(unique),
		Approved:  make([]uuid.UUID, 0, len(unique)),
		Failures:  make([]BatchFailure, 0),
	}

	for _, id := range unique {
		if _, err := e.Approve(ctx, p, id); err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				ID:      id,
				Reason:  FailureReason(err),
				Message: err.Error(),
				Err:     err,
			})
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	result.ApprovedCount = len(result.Approved)

	slog.Info("batch approval finished",
		"requested", result.Requested,
		"approved", result.ApprovedCount,
		"failed", len(result.Failures),
	)
	return result, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
