// Package claims implements the distributed room claim registry. The Redis
// key is the sole source of truth for room ownership; the session store's
// activeAgentId field is a best-effort mirror kept for observability.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auralis-ai/guardian/pkg/guardian/store"
)

// Commands is the subset of Redis commands the registry needs. *redis.Client
// satisfies it; tests substitute a fake.
type Commands interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the claim only when the caller still owns it, so a
// slow release cannot steal a room a new owner has since claimed.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Result reports the outcome of a claim attempt.
type Result struct {
	Claimed bool `json:"claimed"`
	// ExistingAgentID names the current owner when the claim was lost, so
	// the losing worker can back off instead of duplicating media handling.
	ExistingAgentID string `json:"existingAgentId,omitempty"`
}

// Registry coordinates exclusive room ownership between worker processes.
type Registry struct {
	rdb    Commands
	ttl    time.Duration
	mirror store.Store
	logger *slog.Logger
}

func NewRegistry(rdb Commands, ttl time.Duration, mirror store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{rdb: rdb, ttl: ttl, mirror: mirror, logger: logger}
}

func claimKey(roomName string) string {
	return "guardian:claim:" + roomName
}

// Claim attempts an atomic set-if-absent of the room claim. Re-claims by the
// current owner refresh the TTL. A lost claim reports the winner.
func (r *Registry) Claim(ctx context.Context, roomName, agentID string) (Result, error) {
	key := claimKey(roomName)

	// Two attempts cover the window where the owner's TTL lapses between
	// the failed SETNX and the ownership read.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.rdb.SetNX(ctx, key, agentID, r.ttl).Result()
		if err != nil {
			return Result{}, fmt.Errorf("claim %s: %w", roomName, err)
		}
		if ok {
			r.mirrorClaim(ctx, roomName, agentID)
			return Result{Claimed: true}, nil
		}

		owner, err := r.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired under us, retry the set
		}
		if err != nil {
			return Result{}, fmt.Errorf("read claim owner %s: %w", roomName, err)
		}
		if owner == agentID {
			if _, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
				return Result{}, fmt.Errorf("refresh claim %s: %w", roomName, err)
			}
			// The claim may predate the room's session row; mirroring on the
			// refresh path catches up once the session exists.
			r.mirrorClaim(ctx, roomName, agentID)
			return Result{Claimed: true}, nil
		}
		return Result{Claimed: false, ExistingAgentID: owner}, nil
	}
	return Result{}, fmt.Errorf("claim %s: retry exhausted", roomName)
}

// Release deletes the claim only if agentID is the current owner. A
// non-owner's release is a silent no-op.
func (r *Registry) Release(ctx context.Context, roomName, agentID string) error {
	if _, err := r.rdb.Eval(ctx, releaseScript, []string{claimKey(roomName)}, agentID).Result(); err != nil {
		return fmt.Errorf("release %s: %w", roomName, err)
	}
	if r.mirror != nil {
		if err := r.mirror.ClearActiveAgent(ctx, agentID); err != nil {
			r.logger.Warn("clear active agent mirror failed", "agent_id", agentID, "error", err)
		}
	}
	return nil
}

func (r *Registry) mirrorClaim(ctx context.Context, roomName, agentID string) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.SetActiveAgent(ctx, roomName, agentID); err != nil {
		r.logger.Warn("set active agent mirror failed", "room", roomName, "agent_id", agentID, "error", err)
	}
}
