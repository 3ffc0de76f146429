package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateDeposit means a prestart deposit transaction hash has
// already been claimed by a different plan, so this claim must not
// proceed: acting on it again would double-spend the same on-chain
// deposit across two plans.
var ErrDuplicateDeposit = errors.New("coordination: deposit tx hash already claimed by another plan")

// PrestartRetention bounds how long a claimed deposit tx hash is
// remembered. It only needs to outlive the window during which a replayed
// or duplicated webhook/poll could plausibly resubmit the same deposit.
const PrestartRetention = 48 * time.Hour

func prestartKey(depositTxHash string) string {
	return fmt.Sprintf("execplan:prestart:%s", depositTxHash)
}

// PrestartEnforcer claims deposit transaction hashes exactly once, the
// same first-writer-wins SetNX shape the teacher uses for HTTP request
// idempotency, applied here to on-chain deposit hashes instead of
// client-supplied idempotency keys.
type PrestartEnforcer struct{}

// NewPrestartEnforcer builds a PrestartEnforcer.
func NewPrestartEnforcer() *PrestartEnforcer {
	return &PrestartEnforcer{}
}

// ClaimDeposit associates depositTxHash with planUUID if no plan has
// claimed it yet. Returns ErrDuplicateDeposit if another plan already
// holds the claim.
func (e *PrestartEnforcer) ClaimDeposit(ctx context.Context, depositTxHash, planUUID string) error {
	ok, err := redisSetNX(ctx, prestartKey(depositTxHash), planUUID, PrestartRetention)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateDeposit
	}
	return nil
}
