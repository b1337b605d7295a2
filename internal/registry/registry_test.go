package registry

import (
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/obs"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	b := bus.New(client, obs.NewDefault("test"))
	t.Cleanup(func() { _ = b.Close() })
	return New(b, obs.NewDefault("test"))
}

func TestRegisterAllocatesSmallestFreeID(t *testing.T) {
	reg := newTestRegistry(t)

	resp0 := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u0", Family: "game", MaxCapacity: 15})
	require.True(t, resp0.Success)
	assert.Equal(t, "game-0", resp0.AssignedServerID)

	resp1 := reg.Register(busproto.ServerRegistrationRequest{TempID: "t1", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, resp1.Success)
	assert.Equal(t, "game-1", resp1.AssignedServerID)
}

func TestRegisterSameInstanceReclaimsItsOwnID(t *testing.T) {
	reg := newTestRegistry(t)

	first := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, first.Success)

	second := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0-retry", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, second.Success)
	assert.Equal(t, first.AssignedServerID, second.AssignedServerID, "re-registration by the same instance must reclaim its own id")
}

// TestCrashReclaim reproduces the scenario: register game-0 with instance
// U1, let its heartbeat go stale past the crash timeout, then register a
// new instance U2 for the same family; U2 must reclaim game-0.
func TestCrashReclaim(t *testing.T) {
	reg := newTestRegistry(t)

	first := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, first.Success)
	require.Equal(t, "game-0", first.AssignedServerID)

	reg.mu.Lock()
	reg.servers["game-0"].LastHeartbeatAt = time.Now().Add(-2 * crashTimeout)
	reg.mu.Unlock()

	second := reg.Register(busproto.ServerRegistrationRequest{TempID: "t1", InstanceUUID: "u2", Family: "game", MaxCapacity: 15})
	require.True(t, second.Success)
	assert.Equal(t, "game-0", second.AssignedServerID, "a crashed instance's id must be reclaimed by the next registrant")

	rec, ok := reg.Get("game-0")
	require.True(t, ok)
	assert.Equal(t, "u2", rec.InstanceUUID)
}

func TestRegisterDifferentLiveInstanceSkipsToNextID(t *testing.T) {
	reg := newTestRegistry(t)

	first := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, first.Success)
	require.Equal(t, "game-0", first.AssignedServerID)

	second := reg.Register(busproto.ServerRegistrationRequest{TempID: "t1", InstanceUUID: "u2", Family: "game", MaxCapacity: 15})
	require.True(t, second.Success)
	assert.Equal(t, "game-1", second.AssignedServerID, "a live instance's id must not be stolen; the next registrant gets the next free slot")
}

func TestCheckCrashedMarksOfflineAndSkipsAlreadyOffline(t *testing.T) {
	reg := newTestRegistry(t)

	resp := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, resp.Success)

	reg.mu.Lock()
	reg.servers[resp.AssignedServerID].LastHeartbeatAt = time.Now().Add(-time.Minute)
	reg.mu.Unlock()

	crashed := reg.CheckCrashed(10 * time.Second)
	assert.Equal(t, []string{resp.AssignedServerID}, crashed)

	crashedAgain := reg.CheckCrashed(10 * time.Second)
	assert.Empty(t, crashedAgain, "an already-offline server must not be reported twice")
}

func TestGetBestServerSkipsOfflineAndStaleServers(t *testing.T) {
	reg := newTestRegistry(t)

	resp := reg.Register(busproto.ServerRegistrationRequest{TempID: "t0", InstanceUUID: "u1", Family: "game", MaxCapacity: 15})
	require.True(t, resp.Success)

	_, found := reg.GetBestServer("game")
	assert.True(t, found)

	reg.CheckCrashed(0) // immediately marks every registered server offline

	_, found = reg.GetBestServer("game")
	assert.False(t, found, "an offline server must not be returned as the best server")
}
