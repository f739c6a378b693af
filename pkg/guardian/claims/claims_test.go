package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auralis-ai/guardian/pkg/guardian/store"
)

// fakeCommands is an in-memory stand-in for the Redis commands the registry
// uses. Atomicity comes from the mutex, matching Redis's single-threaded
// command execution.
type fakeCommands struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: make(map[string]string)}
}

func (f *fakeCommands) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return redis.NewBoolResult(ok, nil)
}

func (f *fakeCommands) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestClaimExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeCommands(), time.Hour, nil, nil)

	resA, err := reg.Claim(ctx, "r1", "agent-a")
	if err != nil {
		t.Fatalf("claim a: %v", err)
	}
	resB, err := reg.Claim(ctx, "r1", "agent-b")
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}

	if !resA.Claimed {
		t.Fatalf("first claim must win: %+v", resA)
	}
	if resB.Claimed {
		t.Fatalf("second claim must lose: %+v", resB)
	}
	if resB.ExistingAgentID != "agent-a" {
		t.Fatalf("loser must learn the winner, got %q", resB.ExistingAgentID)
	}
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeCommands(), time.Hour, nil, nil)

	const n = 16
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := reg.Claim(ctx, "r1", string(rune('a'+i)))
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res.Claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners=%d, want exactly 1", winners)
	}
}

func TestClaimIdempotentReclaim(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeCommands(), time.Hour, nil, nil)

	if res, _ := reg.Claim(ctx, "r1", "agent-a"); !res.Claimed {
		t.Fatalf("initial claim failed")
	}
	res, err := reg.Claim(ctx, "r1", "agent-a")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !res.Claimed {
		t.Fatalf("owner reclaim must succeed: %+v", res)
	}
}

func TestReleaseByNonOwnerIsNoOp(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	reg := NewRegistry(fake, time.Hour, nil, nil)

	reg.Claim(ctx, "r1", "agent-b")
	if err := reg.Release(ctx, "r1", "agent-a"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// agent-b's claim must remain intact.
	res, err := reg.Claim(ctx, "r1", "agent-c")
	if err != nil {
		t.Fatalf("claim after no-op release: %v", err)
	}
	if res.Claimed || res.ExistingAgentID != "agent-b" {
		t.Fatalf("claim for b should remain: %+v", res)
	}
}

// mirrorRecorder captures the registry's best-effort store mirror calls. The
// embedded Store stays nil; only the two mirror methods are ever invoked.
type mirrorRecorder struct {
	store.Store
	mu    sync.Mutex
	rooms map[string]string
}

func newMirrorRecorder() *mirrorRecorder {
	return &mirrorRecorder{rooms: make(map[string]string)}
}

func (m *mirrorRecorder) SetActiveAgent(ctx context.Context, roomName, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomName] = agentID
	return nil
}

func (m *mirrorRecorder) ClearActiveAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room, owner := range m.rooms {
		if owner == agentID {
			delete(m.rooms, room)
		}
	}
	return nil
}

func (m *mirrorRecorder) owner(roomName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomName]
}

func TestReclaimRefreshMirrorsOwner(t *testing.T) {
	ctx := context.Background()
	mirror := newMirrorRecorder()
	reg := NewRegistry(newFakeCommands(), time.Hour, mirror, nil)

	if res, _ := reg.Claim(ctx, "r1", "agent-a"); !res.Claimed {
		t.Fatalf("initial claim failed")
	}
	if got := mirror.owner("r1"); got != "agent-a" {
		t.Fatalf("mirror after claim = %q, want agent-a", got)
	}

	// A claim placed before the room's session row exists cannot mirror on
	// the first attempt; the owner's refresh must catch it up.
	mirror.ClearActiveAgent(ctx, "agent-a")

	res, err := reg.Claim(ctx, "r1", "agent-a")
	if err != nil || !res.Claimed {
		t.Fatalf("reclaim: res=%+v err=%v", res, err)
	}
	if got := mirror.owner("r1"); got != "agent-a" {
		t.Fatalf("mirror after refresh = %q, want agent-a", got)
	}
}

func TestReleaseClearsMirror(t *testing.T) {
	ctx := context.Background()
	mirror := newMirrorRecorder()
	reg := NewRegistry(newFakeCommands(), time.Hour, mirror, nil)

	reg.Claim(ctx, "r1", "agent-a")
	if err := reg.Release(ctx, "r1", "agent-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := mirror.owner("r1"); got != "" {
		t.Fatalf("mirror after release = %q, want cleared", got)
	}
}

func TestReleaseByOwnerFreesRoom(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeCommands(), time.Hour, nil, nil)

	reg.Claim(ctx, "r1", "agent-a")
	if err := reg.Release(ctx, "r1", "agent-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, err := reg.Claim(ctx, "r1", "agent-b")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Claimed {
		t.Fatalf("room should be free after owner release: %+v", res)
	}
}
