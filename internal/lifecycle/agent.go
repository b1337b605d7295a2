// Package lifecycle implements the per-process server lifecycle agent:
// boot, registration with retry/backoff, heartbeat, evacuation, and
// shutdown, as the state machine BOOT → AWAIT_REGISTRATION →
// REGISTERED(beating) → STOPPING → OFFLINE.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/identity"
	"github.com/haroldsh/fulcrum/internal/obs"
	"github.com/haroldsh/fulcrum/internal/resilience"
)

// State is the agent's coarse lifecycle state.
type State string

const (
	StateBoot               State = "BOOT"
	StateAwaitRegistration  State = "AWAIT_REGISTRATION"
	StateRegistered         State = "REGISTERED"
	StateStopping           State = "STOPPING"
	StateOffline            State = "OFFLINE"
)

// tempHeartbeatThreshold is the number of failed registration attempts
// after which the agent starts heartbeating with its temporary id so the
// registry can see it even if earlier registration broadcasts were lost.
const tempHeartbeatThreshold = 5

// PlayerSource supplies the live player count/roster for heartbeats and
// evacuation; the lifecycle agent never owns game state itself.
type PlayerSource interface {
	PlayerCount() int
	PlayerIDs() []string
	TPS() float64
	DisconnectPlayer(playerID, reason string)
	TransferPlayer(ctx context.Context, playerID, targetServerID string) error
}

// AnnouncementCache tracks peer ServerAnnouncementMessages so evacuation
// can pick a target server.
type AnnouncementCache interface {
	BestLobby() (serverID string, ok bool)
	AnyAvailable(excludeServerID string) (serverID string, ok bool)
	Record(ann busproto.ServerAnnouncementMessage)
}

// Agent is one backend process's lifecycle state machine.
type Agent struct {
	bus     *bus.Bus
	log     *obs.Logger
	backoff resilience.BackoffConfig

	players PlayerSource
	anns    AnnouncementCache

	mu       sync.RWMutex
	identity identity.Identity
	state    State
	bootedAt time.Time

	availablePools    []string
	heartbeatInterval time.Duration

	attempts              int32
	runCtx                context.Context
	cancelReg             context.CancelFunc
	hbCancel              context.CancelFunc
	registrationResponses chan busproto.ServerRegistrationResponse
}

// Config bundles the tunables the agent needs beyond identity itself.
type Config struct {
	EnvironmentFilePath string
	Family              string
	Address             string
	Port                int
	HeartbeatInterval   time.Duration
	RegistrationTimeout time.Duration
	AvailablePools      []string
}

// New boots an Agent: detects server type, computes caps, loads role, and
// generates a temporary id/instanceUUID (spec §4.C "Boot").
func New(b *bus.Bus, log *obs.Logger, players PlayerSource, anns AnnouncementCache, cfg Config) (*Agent, error) {
	id, err := identity.NewBootIdentity(cfg.EnvironmentFilePath, cfg.Family, cfg.Address, cfg.Port)
	if err != nil {
		return nil, err
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	a := &Agent{
		bus:               b,
		log:               log,
		backoff:           resilience.DefaultBackoff(),
		players:           players,
		anns:              anns,
		identity:          id,
		state:             StateBoot,
		bootedAt:          time.Now(),
		availablePools:    cfg.AvailablePools,
		heartbeatInterval: interval,
	}
	return a, nil
}

// Identity returns a snapshot of the agent's current identity record.
func (a *Agent) Identity() identity.Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.identity
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start subscribes to the agent's channels and begins the registration
// handshake (spec §4.C "Registration broadcast"). It returns once
// registration succeeds or ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.subscribeBootChannels()
	a.setState(StateAwaitRegistration)

	regCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.runCtx = ctx
	a.cancelReg = cancel
	a.mu.Unlock()

	return a.registerWithRetry(regCtx, a.heartbeatInterval)
}

func (a *Agent) subscribeBootChannels() {
	id := a.Identity()

	a.bus.Subscribe(busproto.ChannelRegistrationResponse, a.handleRegistrationResponse)
	a.bus.Subscribe(busproto.RegistrationResponseChannel(id.ServerID), a.handleRegistrationResponse)
	a.bus.Subscribe(busproto.ServerChannel(id.ServerID), a.handleDirect)
	a.bus.Subscribe(busproto.ServerReregisterChannel(id.ServerID), a.handleDirect)
	a.bus.Subscribe(busproto.ChannelProxyAnnouncement, a.handleProxyAnnouncement)
	a.bus.Subscribe(busproto.ChannelEvacuationRequest, a.handleEvacuationRequest)
	a.bus.Subscribe(busproto.ChannelServerAnnouncement, a.handlePeerAnnouncement)
}

// registerWithRetry sends ServerRegistrationRequest and retries with
// exponential backoff until a matching response arrives or ctx is done.
// After tempHeartbeatThreshold failed attempts it starts heartbeating
// with the temporary id so the registry can still observe the server.
func (a *Agent) registerWithRetry(ctx context.Context, heartbeatInterval time.Duration) error {
	responses := make(chan busproto.ServerRegistrationResponse, 1)
	a.registrationResponses = responses

	attempt := 0
	startedTempHeartbeat := false

	for {
		attempt++
		atomic.StoreInt32(&a.attempts, int32(attempt))

		if err := a.sendRegistrationRequest(ctx); err != nil {
			a.log.With(nil).WithError(err).Warn("lifecycle: failed to publish registration request")
		}

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		select {
		case resp := <-responses:
			cancel()
			if resp.Success {
				a.onRegistered(ctx, resp, heartbeatInterval)
				return nil
			}
			a.log.With(nil).Warnf("lifecycle: registration rejected: %s", resp.Message)
		case <-waitCtx.Done():
			cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.With(nil).Warn("lifecycle: no registration response within 10s, retrying")
		}

		if attempt >= tempHeartbeatThreshold && !startedTempHeartbeat {
			startedTempHeartbeat = true
			a.log.With(nil).Warn("lifecycle: starting temp-id heartbeat after repeated registration failures")
			a.startHeartbeat(ctx, heartbeatInterval)
		}

		if err := a.backoff.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
}

func (a *Agent) sendRegistrationRequest(ctx context.Context) error {
	id := a.Identity()
	req := busproto.ServerRegistrationRequest{
		TempID:       id.ServerID,
		ServerID:     id.ServerID,
		ServerType:   string(id.ServerType),
		Role:         id.Role,
		Address:      id.Address,
		Port:         id.Port,
		MaxCapacity:  id.MaxCapacity(),
		Family:       id.Family,
		InstanceUUID: id.InstanceUUID,
	}
	return a.bus.Broadcast(ctx, busproto.ChannelRegistrationRequest, req)
}

func (a *Agent) handleRegistrationResponse(_ context.Context, ev bus.Event) error {
	var resp busproto.ServerRegistrationResponse
	if err := decode(ev, &resp); err != nil {
		return err
	}
	id := a.Identity()
	if resp.TempID != id.ServerID {
		return nil // not for us; tempId correlation (spec §5 cancellation)
	}
	select {
	case a.registrationResponses <- resp:
	default:
	}
	return nil
}

// onRegistered applies steps (1)-(7) of "On successful response": cancel
// retry, update identity, restart heartbeat with the permanent id,
// re-subscribe, immediate heartbeat, announce, refresh bus identity.
func (a *Agent) onRegistered(ctx context.Context, resp busproto.ServerRegistrationResponse, heartbeatInterval time.Duration) {
	a.mu.Lock()
	if a.cancelReg != nil {
		a.cancelReg()
	}
	ctx = a.runCtx // ctx was the registration context cancelled just above
	a.identity.ServerID = resp.AssignedServerID
	a.state = StateRegistered
	a.mu.Unlock()

	if a.hbCancel != nil {
		a.hbCancel()
	}

	a.bus.Subscribe(busproto.ServerChannel(resp.AssignedServerID), a.handleDirect)
	a.bus.Subscribe(busproto.ResponseChannel(resp.AssignedServerID), a.handleDirect)

	a.publishHeartbeat(ctx)
	a.startHeartbeat(ctx, heartbeatInterval)

	id := a.Identity()
	a.bus.Broadcast(ctx, busproto.ChannelServerAnnouncement, busproto.ServerAnnouncementMessage{
		ServerID:    id.ServerID,
		ServerType:  string(id.ServerType),
		Environment: id.Role,
		Role:        id.Role,
		MaxCapacity: id.MaxCapacity(),
		Address:     id.Address,
		Port:        id.Port,
	})

	a.bus.RefreshServerIdentity(id.ServerID)
}

func (a *Agent) startHeartbeat(ctx context.Context, interval time.Duration) {
	hbCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.hbCancel = cancel
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				a.publishHeartbeat(hbCtx)
			}
		}
	}()
}

func (a *Agent) publishHeartbeat(ctx context.Context) {
	id := a.Identity()
	tps := a.players.TPS()
	if tps > 20 {
		tps = 20
	}
	msg := busproto.ServerHeartbeatMessage{
		ServerID:       id.ServerID,
		ServerType:     string(id.ServerType),
		TPS:            tps,
		PlayerCount:    a.players.PlayerCount(),
		MaxCapacity:    id.MaxCapacity(),
		UptimeSeconds:  int64(time.Since(a.bootedAt).Seconds()),
		Role:           id.Role,
		AvailablePools: a.availablePools,
	}
	if err := a.bus.Broadcast(ctx, busproto.ChannelServerHeartbeat, msg); err != nil {
		a.log.With(nil).WithError(err).Warn("lifecycle: heartbeat publish failed")
	}
}

func (a *Agent) handleDirect(_ context.Context, _ bus.Event) error { return nil }

func (a *Agent) handleProxyAnnouncement(_ context.Context, _ bus.Event) error { return nil }

func (a *Agent) handlePeerAnnouncement(_ context.Context, ev bus.Event) error {
	var ann busproto.ServerAnnouncementMessage
	if err := decode(ev, &ann); err != nil {
		return err
	}
	a.anns.Record(ann)
	return nil
}

// handleEvacuationRequest implements spec §4.C "Evacuation": for each
// current player pick a target (best lobby, else any non-self available
// server) and transfer; players with no target are disconnected.
func (a *Agent) handleEvacuationRequest(ctx context.Context, ev bus.Event) error {
	var req busproto.ServerEvacuationRequest
	if err := decode(ev, &req); err != nil {
		return err
	}
	id := a.Identity()
	if req.ServerID != id.ServerID {
		return nil
	}

	var evacuated, failed []string
	for _, playerID := range a.players.PlayerIDs() {
		target, ok := a.anns.BestLobby()
		if !ok {
			target, ok = a.anns.AnyAvailable(id.ServerID)
		}
		if !ok {
			a.players.DisconnectPlayer(playerID, "server evacuating, no destination available")
			failed = append(failed, playerID)
			continue
		}
		if err := a.players.TransferPlayer(ctx, playerID, target); err != nil {
			a.players.DisconnectPlayer(playerID, "transfer failed during evacuation")
			failed = append(failed, playerID)
			continue
		}
		evacuated = append(evacuated, playerID)
	}

	return a.bus.Broadcast(ctx, busproto.ChannelEvacuationResponse, busproto.ServerEvacuationResponse{
		ServerID:  id.ServerID,
		OK:        len(failed) == 0,
		Evacuated: evacuated,
		Failed:    failed,
		Message:   fmt.Sprintf("evacuated %d, failed %d", len(evacuated), len(failed)),
	})
}

// Shutdown implements spec §4.C "Shutdown": cancel heartbeat/timers,
// broadcast removal, broadcast a terminal heartbeat, and notify the bound
// proxy if one is known.
func (a *Agent) Shutdown(ctx context.Context, boundProxyID string) {
	a.setState(StateStopping)

	a.mu.Lock()
	if a.hbCancel != nil {
		a.hbCancel()
	}
	if a.cancelReg != nil {
		a.cancelReg()
	}
	a.mu.Unlock()

	id := a.Identity()
	a.bus.Broadcast(ctx, busproto.ChannelServerRemoved, busproto.ServerRemovalNotification{
		ServerID: id.ServerID,
		Reason:   "SHUTDOWN",
	})
	a.bus.Broadcast(ctx, busproto.ChannelServerHeartbeat, busproto.ServerHeartbeatMessage{
		ServerID:   id.ServerID,
		ServerType: string(id.ServerType),
		Role:       "SHUTDOWN",
	})
	if boundProxyID != "" {
		a.bus.Send(ctx, busproto.ServerChannel(boundProxyID), busproto.ServerRemovalNotification{
			ServerID: id.ServerID,
			Reason:   "deregister",
		})
	}

	a.setState(StateOffline)
}

func decode(ev bus.Event, v interface{}) error {
	return json.Unmarshal(ev.Payload, v)
}
