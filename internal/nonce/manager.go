// Package nonce allocates per-(chain, signer) EVM nonces for execution
// steps. The allocation rule is a four-case ladder — cold start a pair from
// the chain's reported nonce, hand out the next counter value, return an
// already-assigned value on retry, or reclaim a nonce freed by a dropped
// step — where each individual case runs as one atomic Redis operation but
// the ladder as a whole is not atomic across cases: a concurrent caller can
// interleave between two callers' attempts, so callers must tolerate
// ErrConditionalCheckFailed from an individual case and fall through to the
// next one.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ErrConditionalCheckFailed means the case's precondition did not hold:
// the key already existed (cold start), didn't exist (next/reclaim), or no
// assignment was on record (existing assignment).
var ErrConditionalCheckFailed = errors.New("nonce: conditional check failed")

// ErrAllCasesFailed means the whole ladder — cold start, next nonce,
// existing assignment, reclaim dropped — ran out of cases without
// producing a nonce. With the counter seeded, no assignment for the step
// and an empty dropped set, next-nonce always succeeds, so this is reached
// only when a concurrent caller changes the keys between two cases (e.g.
// drains the dropped set after next-nonce saw it non-empty).
var ErrAllCasesFailed = errors.New("nonce: cold-start, next-nonce, existing-assignment and reclaim-dropped all failed")

// Manager allocates and reclaims nonces for EVM execution steps, one
// (chain, signer) counter per pair, via Lua scripts run against Redis.
type Manager struct {
	rdb *redis.Client

	coldStart *redis.Script
	nextNonce *redis.Script
	reclaim   *redis.Script
}

// NewManager builds a Manager backed by rdb.
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{
		rdb:       rdb,
		coldStart: redis.NewScript(coldStartScript),
		nextNonce: redis.NewScript(nextNonceScript),
		reclaim:   redis.NewScript(reclaimScript),
	}
}

func nextKey(chain, signer string) string {
	return fmt.Sprintf("nonce:{%s:%s}:next", chain, signer)
}

func blockKey(chain, signer string) string {
	return fmt.Sprintf("nonce:{%s:%s}:block", chain, signer)
}

func droppedKey(chain, signer string) string {
	return fmt.Sprintf("nonce:{%s:%s}:dropped", chain, signer)
}

func assignedKey(chain, signer, stepUUID string) string {
	return fmt.Sprintf("nonce:{%s:%s}:assigned:%s", chain, signer, stepUUID)
}

// coldStartScript seeds the (chain, signer) counter from the chain's
// reported nonce and assigns it to stepUUID, but only if the counter has
// never been seeded before.
const coldStartScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return false
end
redis.call('SET', KEYS[1], ARGV[1] + 1)
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[1])
return ARGV[1]
`

// nextNonceScript atomically reserves the current counter value for
// stepUUID and advances the counter, but only if the counter already
// exists (i.e. cold start already ran for this pair), stepUUID does not
// already hold an assignment (a retry for an already-assigned step must
// fall through to the existing-assignment case instead of burning a fresh
// nonce and silently orphaning the old one), and the dropped set is empty:
// a reclaimable nonce must be handed out before the counter advances past
// it, or it is never reclaimed once the counter is past the cold-start
// call.
const nextNonceScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return false
end
if redis.call('SCARD', KEYS[4]) > 0 then
  return false
end
local n = tonumber(redis.call('GET', KEYS[1]))
redis.call('SET', KEYS[1], n + 1)
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], n)
return n
`

// reclaimScript pops one nonce out of the dropped set and assigns it to
// stepUUID, but only if the dropped set is non-empty and stepUUID does not
// already hold an assignment, for the same reason nextNonceScript checks it.
const reclaimScript = `
if redis.call('EXISTS', KEYS[3]) == 1 then
  return false
end
local n = redis.call('SPOP', KEYS[1])
if not n then
  return false
end
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], n)
return n
`

func parseScriptResult(res interface{}, err error) (uint64, error) {
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return uint64(v), nil
	case string:
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return 0, fmt.Errorf("nonce: parse script result %q: %w", v, perr)
		}
		return n, nil
	default:
		// Lua false decodes to a nil reply in go-redis.
		return 0, ErrConditionalCheckFailed
	}
}

func (m *Manager) attemptColdStart(ctx context.Context, chain, signer, stepUUID string, curBlock, systemNonce uint64) (uint64, error) {
	keys := []string{nextKey(chain, signer), blockKey(chain, signer), assignedKey(chain, signer, stepUUID)}
	res, err := m.coldStart.Run(ctx, m.rdb, keys, systemNonce, curBlock).Result()
	return parseScriptResult(res, err)
}

func (m *Manager) attemptNextNonce(ctx context.Context, chain, signer, stepUUID string, curBlock uint64) (uint64, error) {
	keys := []string{nextKey(chain, signer), blockKey(chain, signer), assignedKey(chain, signer, stepUUID), droppedKey(chain, signer)}
	res, err := m.nextNonce.Run(ctx, m.rdb, keys, curBlock).Result()
	return parseScriptResult(res, err)
}

func (m *Manager) attemptExistingAssignment(ctx context.Context, chain, signer, stepUUID string) (uint64, error) {
	val, err := m.rdb.Get(ctx, assignedKey(chain, signer, stepUUID)).Result()
	if err == redis.Nil {
		return 0, ErrConditionalCheckFailed
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("nonce: parse assignment %q: %w", val, err)
	}
	return n, nil
}

func (m *Manager) attemptReclaimDropped(ctx context.Context, chain, signer, stepUUID string, curBlock uint64) (uint64, error) {
	keys := []string{droppedKey(chain, signer), blockKey(chain, signer), assignedKey(chain, signer, stepUUID)}
	res, err := m.reclaim.Run(ctx, m.rdb, keys, curBlock).Result()
	return parseScriptResult(res, err)
}

// GetNonce returns the nonce assigned to stepUUID for (chain, signer),
// running the cold-start, next-nonce, existing-assignment and
// reclaim-dropped cases in that order and returning the first one that
// succeeds. systemNonce is the chain's own reported next nonce for signer,
// used only if this pair has never been seeded. curBlock is recorded
// alongside whichever nonce gets assigned, for the executor's drop-window
// bookkeeping.
func (m *Manager) GetNonce(ctx context.Context, chain, signer, stepUUID string, curBlock, systemNonce uint64) (uint64, error) {
	if n, err := m.attemptColdStart(ctx, chain, signer, stepUUID, curBlock, systemNonce); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrConditionalCheckFailed) {
		return 0, err
	}

	if n, err := m.attemptNextNonce(ctx, chain, signer, stepUUID, curBlock); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrConditionalCheckFailed) {
		return 0, err
	}

	if n, err := m.attemptExistingAssignment(ctx, chain, signer, stepUUID); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrConditionalCheckFailed) {
		return 0, err
	}

	if n, err := m.attemptReclaimDropped(ctx, chain, signer, stepUUID, curBlock); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrConditionalCheckFailed) {
		return 0, err
	}

	return 0, ErrAllCasesFailed
}

// FinalizeStep drops the bookkeeping for a step whose EVM leg has reached a
// terminal success: its nonce is consumed for good and need not be tracked
// for reclaim.
func (m *Manager) FinalizeStep(ctx context.Context, chain, signer, stepUUID string) error {
	return m.rdb.Del(ctx, assignedKey(chain, signer, stepUUID)).Err()
}

// DropStep records droppedNonce as reclaimable by a future step and clears
// stepUUID's own assignment.
func (m *Manager) DropStep(ctx context.Context, chain, signer, stepUUID string, droppedNonce uint64) error {
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, droppedKey(chain, signer), droppedNonce)
	pipe.Del(ctx, assignedKey(chain, signer, stepUUID))
	_, err := pipe.Exec(ctx)
	return err
}

// DropStepFromID looks up stepUUID's assigned nonce and drops it, for
// callers that only have the step identity on hand (e.g. a driver reacting
// to an externally observed Dropped transition).
func (m *Manager) DropStepFromID(ctx context.Context, chain, signer, stepUUID string) error {
	n, err := m.attemptExistingAssignment(ctx, chain, signer, stepUUID)
	if err != nil {
		return err
	}
	return m.DropStep(ctx, chain, signer, stepUUID, n)
}
