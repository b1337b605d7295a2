// Package registry implements the authoritative server directory: id
// allocation by smallest-free-N, crash detection by heartbeat staleness,
// and re-registration broadcast on registry restart.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/metrics"
	"github.com/haroldsh/fulcrum/internal/obs"
)

// Status mirrors a registered server's lifecycle state as seen by the
// registry, not by the server itself.
type Status string

const (
	StatusReady   Status = "READY"
	StatusOffline Status = "OFFLINE"
)

// crashTimeout is the "now - lastHeartbeatAt" threshold past which a
// server is considered crashed (spec §4.D).
const crashTimeout = 60 * time.Second

// ServerRecord is the registry's view of one registered server.
type ServerRecord struct {
	ServerID        string
	InstanceUUID    string
	ServerType      string
	Role            string
	Family          string
	Address         string
	Port            int
	MaxCapacity     int
	Status          Status
	LastHeartbeatAt time.Time
}

func (r ServerRecord) isProxy() bool { return r.ServerType == "PROXY" || r.Family == "fulcrum-proxy" }

// Registry is the authoritative serverId -> metadata map.
type Registry struct {
	bus     *bus.Bus
	log     *obs.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	servers map[string]*ServerRecord
}

// New creates an empty Registry and wires its bus subscriptions.
func New(b *bus.Bus, log *obs.Logger) *Registry {
	r := &Registry{bus: b, log: log, metrics: metrics.Global(), servers: make(map[string]*ServerRecord)}
	b.Subscribe(busproto.ChannelRegistrationRequest, r.handleRegistrationRequest)
	b.Subscribe(busproto.ChannelServerHeartbeat, r.handleHeartbeat)
	b.Subscribe(busproto.ChannelServerRemoved, r.handleRemoved)
	return r
}

// Register applies the spec §4.D registration rule and returns the
// outcome to send back on the per-request response channel.
func (reg *Registry) Register(req busproto.ServerRegistrationRequest) busproto.ServerRegistrationResponse {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	family := req.Family
	isProxy := req.ServerType == "PROXY" || family == "fulcrum-proxy"

	prefix := family
	if isProxy {
		prefix = "fulcrum-proxy"
	}
	if prefix == "" {
		prefix = "game"
	}

	serverID := reg.smallestFreeIDLocked(prefix, req.InstanceUUID)
	if serverID == "" {
		return busproto.ServerRegistrationResponse{TempID: req.TempID, Success: false, Message: "ID in use"}
	}

	reg.servers[serverID] = &ServerRecord{
		ServerID:        serverID,
		InstanceUUID:    req.InstanceUUID,
		ServerType:      req.ServerType,
		Role:            req.Role,
		Family:          family,
		Address:         req.Address,
		Port:            req.Port,
		MaxCapacity:     req.MaxCapacity,
		Status:          StatusReady,
		LastHeartbeatAt: time.Now(),
	}

	return busproto.ServerRegistrationResponse{
		TempID:           req.TempID,
		Success:          true,
		AssignedServerID: serverID,
	}
}

// smallestFreeIDLocked finds the smallest non-negative N such that
// "<prefix>-<N>" is free, applying the reclaim/replace/fail rule when the
// candidate id is already taken by a different instance. Callers must
// hold reg.mu.
func (reg *Registry) smallestFreeIDLocked(prefix, instanceUUID string) string {
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s-%d", prefix, n)
		existing, taken := reg.servers[candidate]
		if !taken {
			return candidate
		}
		if existing.InstanceUUID == instanceUUID {
			return candidate // reclaimed: same instance re-registering
		}
		if existing.Status == StatusOffline || reg.isCrashedLocked(existing) {
			return candidate // reclaimed: previous holder is gone
		}
		// else: id in use by a live, different instance; try the next N
	}
}

func (reg *Registry) isCrashedLocked(rec *ServerRecord) bool {
	return time.Since(rec.LastHeartbeatAt) > crashTimeout
}

// CheckCrashed marks every server whose heartbeat is older than timeout
// as OFFLINE and returns the list of serverIds newly marked.
func (reg *Registry) CheckCrashed(timeout time.Duration) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var crashed []string
	now := time.Now()
	for id, rec := range reg.servers {
		if rec.Status == StatusOffline {
			continue
		}
		if now.Sub(rec.LastHeartbeatAt) > timeout {
			rec.Status = StatusOffline
			crashed = append(crashed, id)
			reg.metrics.RecordServerCrash(rec.Family)
		}
	}
	return crashed
}

// refreshOnlineGaugeLocked recomputes the fulcrum_servers_online gauge
// per family/serverType. Callers must hold reg.mu.
func (reg *Registry) refreshOnlineGaugeLocked() {
	counts := make(map[[2]string]int)
	for _, rec := range reg.servers {
		if rec.Status == StatusReady {
			counts[[2]string{rec.Family, rec.ServerType}]++
		}
	}
	for key, count := range counts {
		reg.metrics.SetServersOnline(key[0], key[1], count)
	}
}

// GetBestServer returns the first READY, non-crashed server of the
// requested family.
func (reg *Registry) GetBestServer(family string) (ServerRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, rec := range reg.servers {
		if rec.Family == family && rec.Status == StatusReady && !reg.isCrashedLocked(rec) {
			return *rec, true
		}
	}
	return ServerRecord{}, false
}

// Get returns the current record for serverID.
func (reg *Registry) Get(serverID string) (ServerRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.servers[serverID]
	if !ok {
		return ServerRecord{}, false
	}
	return *rec, true
}

// List returns a snapshot of every registered server.
func (reg *Registry) List() []ServerRecord {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]ServerRecord, 0, len(reg.servers))
	for _, rec := range reg.servers {
		out = append(out, *rec)
	}
	return out
}

// BroadcastReregistration asks every live agent to resend its
// ServerRegistrationRequest, used when the registry itself restarts and
// has lost its in-memory map.
func (reg *Registry) BroadcastReregistration(ctx context.Context, registryInstanceID string) error {
	return reg.bus.Broadcast(ctx, busproto.ChannelProxyRequestRegistration, busproto.RegistryReregistrationRequest{
		RegistryInstanceID: registryInstanceID,
	})
}

func (reg *Registry) handleRegistrationRequest(ctx context.Context, ev bus.Event) error {
	var req busproto.ServerRegistrationRequest
	if err := decodeEvent(ev, &req); err != nil {
		return err
	}
	resp := reg.Register(req)
	if resp.Success {
		reg.log.With(nil).Infof("registry: registered %s (temp=%s)", resp.AssignedServerID, req.TempID)
		reg.mu.Lock()
		reg.refreshOnlineGaugeLocked()
		reg.mu.Unlock()
	} else {
		reg.log.With(nil).Warnf("registry: registration failed for temp=%s: %s", req.TempID, resp.Message)
	}
	return reg.bus.Send(ctx, busproto.RegistrationResponseChannel(req.TempID), resp)
}

func (reg *Registry) handleHeartbeat(_ context.Context, ev bus.Event) error {
	var hb busproto.ServerHeartbeatMessage
	if err := decodeEvent(ev, &hb); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rec, ok := reg.servers[hb.ServerID]; ok {
		rec.LastHeartbeatAt = time.Now()
		rec.Status = StatusReady
		reg.metrics.RecordHeartbeat(rec.Family)
	}
	return nil
}

func (reg *Registry) handleRemoved(_ context.Context, ev bus.Event) error {
	var notif busproto.ServerRemovalNotification
	if err := decodeEvent(ev, &notif); err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rec, ok := reg.servers[notif.ServerID]; ok {
		rec.Status = StatusOffline
	}
	return nil
}
