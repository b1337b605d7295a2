package party

import (
	"context"
	"time"

	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/kv"
)

// RunMaintenance iterates the active-party set and purges expired
// invites, removes members offline beyond DisconnectGrace, deletes empty
// parties, and enforces the solo-idle disband rule (spec §4.E
// "Maintenance"). The party daemon's main calls it every 30 seconds from
// a time.Ticker.
func (c *Coordinator) RunMaintenance(ctx context.Context) error {
	partyIDs, err := c.store.SMembers(ctx, activeSetKey)
	if err != nil {
		return err
	}

	for _, partyID := range partyIDs {
		if err := c.maintainOne(ctx, partyID); err != nil {
			c.log.With(nil).WithError(err).Warnf("party: maintenance failed for %s", partyID)
		}
	}
	return nil
}

func (c *Coordinator) maintainOne(ctx context.Context, partyID string) error {
	_, err := c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err == kv.ErrNotFound {
			return ok(nil), nil
		}
		if err != nil {
			return Result{}, err
		}

		now := time.Now()
		changed := false

		for targetID, invite := range snap.Invites {
			if invite.expired(now) {
				delete(snap.Invites, targetID)
				_ = c.store.Del(ctx, inviteKey(targetID, partyID))
				changed = true
				c.publish(ctx, snap, busproto.PartyActionInviteExpired, "", targetID, "expired")
			}
		}

		for id, m := range snap.Members {
			if m.Role == RoleLeader {
				continue
			}
			if !m.Online && now.Sub(m.LastSeenAt) >= c.cfg.DisconnectGrace {
				delete(snap.Members, id)
				_ = c.clearLookup(ctx, id)
				changed = true
				c.publish(ctx, snap, busproto.PartyActionMemberKicked, "", id, "disconnect grace exceeded")
			}
		}

		if snap.size() == 0 {
			return ok(nil), c.deleteSnapshot(ctx, partyID)
		}

		snap.refreshIdleGrace(now, c.cfg.IdleGrace)
		if !snap.PendingIdleDisbandAt.IsZero() && !snap.PendingIdleDisbandAt.After(now) && snap.size() <= 1 {
			if err := c.deleteSnapshot(ctx, partyID); err != nil {
				return Result{}, err
			}
			c.publish(ctx, snap, busproto.PartyActionDisbanded, "", "", "solo idle grace expired")
			return ok(nil), nil
		}

		if changed {
			if err := c.saveSnapshot(ctx, snap); err != nil {
				return Result{}, err
			}
		}
		return ok(snap), nil
	})
	return err
}
