// Package party implements the party coordinator: all mutations on the
// shared Snapshot state, serialized per-party via a SETNX + compare-and-
// delete distributed lock, with every mutation publishing a
// PartyUpdateMessage.
package party

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/kv"
	"github.com/haroldsh/fulcrum/internal/metrics"
	"github.com/haroldsh/fulcrum/internal/obs"
)

// Config tunes the coordinator's timing knobs.
type Config struct {
	LockTTL       time.Duration
	InviteTTL     time.Duration
	IdleGrace     time.Duration
	DisconnectGrace time.Duration
}

// DefaultConfig matches the spec's defaults: 5s lock TTL, plus the
// process-configured invite/idle windows.
func DefaultConfig() Config {
	return Config{
		LockTTL:         5 * time.Second,
		InviteTTL:       60 * time.Second,
		IdleGrace:       5 * time.Minute,
		DisconnectGrace: 2 * time.Minute,
	}
}

// Coordinator is the party coordinator. It owns no in-memory party state;
// every mutation reads-locks-mutates-persists-unlocks against the shared
// KV store (spec: "the party coordinator owns no in-memory party state").
type Coordinator struct {
	store   kv.Store
	bus     *bus.Bus
	log     *obs.Logger
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a Coordinator.
func New(store kv.Store, b *bus.Bus, log *obs.Logger, cfg Config) *Coordinator {
	return &Coordinator{store: store, bus: b, log: log, cfg: cfg, metrics: metrics.Global()}
}

// Result is the common return shape for every coordinator operation.
type Result struct {
	Code     apperrors.Code
	Message  string
	Snapshot *Snapshot
	Invite   *Invite
}

func ok(snap *Snapshot) Result { return Result{Snapshot: snap} }

func fail(code apperrors.Code, msg string) Result { return Result{Code: code, Message: msg} }

// withPartyLock acquires the per-party lock, runs fn, and always releases
// via compare-and-delete regardless of fn's outcome (spec §4.E).
func (c *Coordinator) withPartyLock(ctx context.Context, partyID string, fn func() (Result, error)) (Result, error) {
	token := uuid.NewString()
	key := lockKey(partyID)

	acquired, err := c.store.SetNX(ctx, key, token, c.cfg.LockTTL)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		return fail(apperrors.CodeRedisUnavailable, "could not acquire party lock"), nil
	}
	defer func() {
		if _, derr := c.store.CompareAndDelete(ctx, key, token); derr != nil {
			c.log.With(nil).WithError(derr).Warn("party: failed to release lock")
		}
	}()

	return fn()
}

func (c *Coordinator) loadSnapshot(ctx context.Context, partyID string) (*Snapshot, error) {
	raw, err := c.store.Get(ctx, dataKey(partyID))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Coordinator) saveSnapshot(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, dataKey(snap.PartyID), string(data)); err != nil {
		return err
	}
	return c.store.SAdd(ctx, activeSetKey, snap.PartyID)
}

func (c *Coordinator) deleteSnapshot(ctx context.Context, partyID string) error {
	if err := c.store.Del(ctx, dataKey(partyID)); err != nil {
		return err
	}
	return c.store.SRem(ctx, activeSetKey, partyID)
}

func (c *Coordinator) lookupParty(ctx context.Context, playerID string) (string, error) {
	return c.store.Get(ctx, lookupKey(playerID))
}

func (c *Coordinator) setLookup(ctx context.Context, playerID, partyID string) error {
	return c.store.Set(ctx, lookupKey(playerID), partyID)
}

func (c *Coordinator) clearLookup(ctx context.Context, playerID string) error {
	return c.store.Del(ctx, lookupKey(playerID))
}

// publish emits a PartyUpdateMessage for one mutation.
func (c *Coordinator) publish(ctx context.Context, snap *Snapshot, action busproto.PartyAction, actorID, targetID, reason string) {
	raw, err := json.Marshal(snap)
	if err != nil {
		c.log.With(nil).WithError(err).Warn("party: failed to marshal snapshot for publish")
		return
	}
	msg := busproto.PartyUpdateMessage{
		PartyID:   snap.PartyID,
		Snapshot:  raw,
		Action:    action,
		ActorID:   actorID,
		TargetID:  targetID,
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	}
	if err := c.bus.Broadcast(ctx, busproto.ChannelPartyUpdate, msg); err != nil {
		c.log.With(nil).WithError(err).Warn("party: failed to publish update")
	}
	c.metrics.RecordPartyOperation(string(action), "OK")
}

func memberByRole(snap *Snapshot, role Role) (Member, bool) {
	for _, m := range snap.Members {
		if m.Role == role {
			return m, true
		}
	}
	return Member{}, false
}

func isLeaderOrModerator(snap *Snapshot, playerID string) bool {
	m, ok := snap.Members[playerID]
	return ok && (m.Role == RoleLeader || m.Role == RoleModerator)
}

func fmtNotFoundMsg(partyID string) string {
	return fmt.Sprintf("party %s not found", partyID)
}
