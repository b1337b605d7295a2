package party

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/busproto"
	"github.com/haroldsh/fulcrum/internal/kv"
)

// InvitePlayer implements invitePlayer (spec §4.E). If actor is not in a
// party, one is auto-created with actor as leader (Open Question decision
// recorded in the design notes), rather than failing with NOT_IN_PARTY.
func (c *Coordinator) InvitePlayer(ctx context.Context, actorID, actorUsername, targetID string) (Result, error) {
	if actorID == targetID {
		return fail(apperrors.CodeCannotTargetSelf, "cannot invite yourself"), nil
	}

	partyID, err := c.lookupParty(ctx, actorID)
	if err == kv.ErrNotFound {
		return c.createPartyAndInvite(ctx, actorID, actorUsername, targetID)
	}
	if err != nil {
		return Result{}, err
	}

	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if !isLeaderOrModerator(snap, actorID) {
			return fail(apperrors.CodeNotLeader, "must be leader or moderator to invite"), nil
		}
		return c.doInvite(ctx, snap, actorID, targetID)
	})
}

func (c *Coordinator) createPartyAndInvite(ctx context.Context, actorID, actorUsername, targetID string) (Result, error) {
	partyID := uuid.NewString()
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap := newSnapshot(partyID, actorID)
		now := time.Now()
		snap.Members[actorID] = Member{PlayerID: actorID, Username: actorUsername, Role: RoleLeader, Online: true, JoinedAt: now, LastSeenAt: now}
		snap.refreshIdleGrace(now, c.cfg.IdleGrace)

		if err := c.setLookup(ctx, actorID, partyID); err != nil {
			return Result{}, err
		}
		res, err := c.doInvite(ctx, snap, actorID, targetID)
		if err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionCreated, actorID, "", "")
		return res, nil
	})
}

// doInvite performs the invite body once the party is locked and loaded;
// it rejects full party, pending invite, or target already in a party
// (self-target is rejected earlier, in InvitePlayer), then persists and
// publishes INVITE_SENT.
func (c *Coordinator) doInvite(ctx context.Context, snap *Snapshot, actorID, targetID string) (Result, error) {
	if snap.size() >= HardSizeCap {
		return fail(apperrors.CodePartyFull, "party is full"), nil
	}
	if _, pending := snap.Invites[targetID]; pending {
		return fail(apperrors.CodeInviteAlreadyPending, "invite already pending"), nil
	}
	if targetParty, err := c.lookupParty(ctx, targetID); err == nil && targetParty != "" {
		return fail(apperrors.CodeTargetAlreadyInParty, "target already in a party"), nil
	}
	if _, isMember := snap.Members[targetID]; isMember {
		return fail(apperrors.CodeTargetAlreadyInParty, "target already in a party"), nil
	}

	now := time.Now()
	invite := Invite{TargetID: targetID, InviterID: actorID, CreatedAt: now, ExpiresAt: now.Add(c.cfg.InviteTTL)}
	snap.Invites[targetID] = invite
	snap.touch()

	if err := c.store.SetEX(ctx, inviteKey(targetID, snap.PartyID), "1", c.cfg.InviteTTL); err != nil {
		return Result{}, err
	}
	if err := c.saveSnapshot(ctx, snap); err != nil {
		return Result{}, err
	}

	c.publish(ctx, snap, busproto.PartyActionInviteSent, actorID, targetID, "")
	return Result{Snapshot: snap, Invite: &invite}, nil
}

// AcceptInvite implements acceptInvite (spec §4.E).
func (c *Coordinator) AcceptInvite(ctx context.Context, playerID, username, partyID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeInviteNotFound, fmtNotFoundMsg(partyID)), nil
		}

		invite, pending := snap.Invites[playerID]
		if !pending {
			return fail(apperrors.CodeInviteNotFound, "no invite found"), nil
		}
		if invite.expired(time.Now()) {
			delete(snap.Invites, playerID)
			_ = c.saveSnapshot(ctx, snap)
			return fail(apperrors.CodeInviteExpired, "invite expired"), nil
		}
		if existing, err := c.lookupParty(ctx, playerID); err == nil && existing != "" {
			return fail(apperrors.CodeAlreadyInParty, "already in a party"), nil
		}
		if snap.size() >= HardSizeCap {
			return fail(apperrors.CodePartyFull, "party is full"), nil
		}

		delete(snap.Invites, playerID)
		now := time.Now()
		snap.Members[playerID] = Member{PlayerID: playerID, Username: username, Role: RoleMember, Online: true, JoinedAt: now, LastSeenAt: now}
		snap.refreshIdleGrace(now, c.cfg.IdleGrace)
		snap.touch()

		if err := c.store.Del(ctx, inviteKey(playerID, partyID)); err != nil {
			return Result{}, err
		}
		if err := c.setLookup(ctx, playerID, partyID); err != nil {
			return Result{}, err
		}
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}

		c.publish(ctx, snap, busproto.PartyActionInviteAccepted, playerID, "", "")
		return ok(snap), nil
	})
}

// DeclineInvite implements declineInvite. If partyID is empty, every
// invite for player still present under its invite keys is declined, one
// party at a time.
func (c *Coordinator) DeclineInvite(ctx context.Context, playerID, partyID string) (Result, error) {
	if partyID == "" {
		prefix := inviteKey(playerID, "")
		keys, err := c.store.ScanPrefix(ctx, prefix)
		if err != nil {
			return Result{}, err
		}
		for _, key := range keys {
			if _, err := c.DeclineInvite(ctx, playerID, key[len(prefix):]); err != nil {
				return Result{}, err
			}
		}
		return ok(nil), nil
	}
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeInviteNotFound, fmtNotFoundMsg(partyID)), nil
		}
		if _, pending := snap.Invites[playerID]; !pending {
			return fail(apperrors.CodeInviteNotFound, "no invite found"), nil
		}
		delete(snap.Invites, playerID)
		snap.touch()

		if err := c.store.Del(ctx, inviteKey(playerID, partyID)); err != nil {
			return Result{}, err
		}
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionInviteRevoked, playerID, "", "declined")
		return ok(snap), nil
	})
}

// LeaveParty implements leaveParty (spec §4.E): if the leaving player is
// the leader, promote the next leader by order (moderator first, then
// member, earliest joinedAt); if nobody remains, disband.
func (c *Coordinator) LeaveParty(ctx context.Context, playerID string) (Result, error) {
	partyID, err := c.lookupParty(ctx, playerID)
	if err != nil || partyID == "" {
		return fail(apperrors.CodeNotInParty, "not in a party"), nil
	}

	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		member, inParty := snap.Members[playerID]
		if !inParty {
			return fail(apperrors.CodeNotInParty, "not in this party"), nil
		}

		delete(snap.Members, playerID)
		_ = c.clearLookup(ctx, playerID)

		if member.Role != RoleLeader {
			snap.refreshIdleGrace(time.Now(), c.cfg.IdleGrace)
			snap.touch()
			if err := c.saveSnapshot(ctx, snap); err != nil {
				return Result{}, err
			}
			c.publish(ctx, snap, busproto.PartyActionMemberLeft, playerID, "", "")
			return ok(snap), nil
		}

		next, hasNext := pickNextLeader(snap)
		if !hasNext {
			if err := c.deleteSnapshot(ctx, partyID); err != nil {
				return Result{}, err
			}
			c.publish(ctx, snap, busproto.PartyActionDisbanded, playerID, "", "last member left")
			return ok(nil), nil
		}

		next.Role = RoleLeader
		snap.Members[next.PlayerID] = next
		snap.LeaderID = next.PlayerID
		snap.refreshIdleGrace(time.Now(), c.cfg.IdleGrace)
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionTransferred, playerID, next.PlayerID, "leader left")
		return ok(snap), nil
	})
}

// pickNextLeader returns the moderator with the earliest joinedAt if any
// exist, else the member with the earliest joinedAt.
func pickNextLeader(snap *Snapshot) (Member, bool) {
	var bestMod, bestMember Member
	haveMod, haveMember := false, false
	for _, m := range snap.Members {
		switch m.Role {
		case RoleModerator:
			if !haveMod || m.JoinedAt.Before(bestMod.JoinedAt) {
				bestMod, haveMod = m, true
			}
		case RoleMember:
			if !haveMember || m.JoinedAt.Before(bestMember.JoinedAt) {
				bestMember, haveMember = m, true
			}
		}
	}
	if haveMod {
		return bestMod, true
	}
	if haveMember {
		return bestMember, true
	}
	return Member{}, false
}

// DisbandParty implements disbandParty: leader only.
func (c *Coordinator) DisbandParty(ctx context.Context, actorID, partyID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if snap.LeaderID != actorID {
			return fail(apperrors.CodeNotLeader, "only the leader can disband"), nil
		}
		for playerID := range snap.Members {
			_ = c.clearLookup(ctx, playerID)
		}
		for targetID := range snap.Invites {
			_ = c.store.Del(ctx, inviteKey(targetID, partyID))
		}
		if err := c.deleteSnapshot(ctx, partyID); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionDisbanded, actorID, "", "disbanded by leader")
		return ok(nil), nil
	})
}

// Promote implements promote: MEMBER->MODERATOR, or MODERATOR->LEADER
// (demoting the old leader to MODERATOR).
func (c *Coordinator) Promote(ctx context.Context, actorID, partyID, targetID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if snap.LeaderID != actorID {
			return fail(apperrors.CodeLeaderOnlyAction, "only the leader can promote"), nil
		}
		target, exists := snap.Members[targetID]
		if !exists {
			return fail(apperrors.CodeTargetNotInParty, "target not in party"), nil
		}

		switch target.Role {
		case RoleMember:
			target.Role = RoleModerator
			snap.Members[targetID] = target
			snap.touch()
			if err := c.saveSnapshot(ctx, snap); err != nil {
				return Result{}, err
			}
			c.publish(ctx, snap, busproto.PartyActionRoleChanged, actorID, targetID, "promoted to moderator")
			return ok(snap), nil
		case RoleModerator:
			leader := snap.Members[actorID]
			leader.Role = RoleModerator
			target.Role = RoleLeader
			snap.Members[actorID] = leader
			snap.Members[targetID] = target
			snap.LeaderID = targetID
			snap.touch()
			if err := c.saveSnapshot(ctx, snap); err != nil {
				return Result{}, err
			}
			c.publish(ctx, snap, busproto.PartyActionTransferred, actorID, targetID, "promoted to leader")
			return ok(snap), nil
		default:
			return fail(apperrors.CodeLeaderOnlyAction, "target is already leader"), nil
		}
	})
}

// Demote implements demote: MODERATOR->MEMBER, leader only.
func (c *Coordinator) Demote(ctx context.Context, actorID, partyID, targetID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if snap.LeaderID != actorID {
			return fail(apperrors.CodeLeaderOnlyAction, "only the leader can demote"), nil
		}
		target, exists := snap.Members[targetID]
		if !exists || target.Role != RoleModerator {
			return fail(apperrors.CodeTargetNotInParty, "target is not a moderator"), nil
		}
		target.Role = RoleMember
		snap.Members[targetID] = target
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionRoleChanged, actorID, targetID, "demoted to member")
		return ok(snap), nil
	})
}

// TransferLeadership implements transferLeadership: leader only, swaps
// roles with target.
func (c *Coordinator) TransferLeadership(ctx context.Context, actorID, partyID, targetID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if snap.LeaderID != actorID {
			return fail(apperrors.CodeLeaderOnlyAction, "only the leader can transfer leadership"), nil
		}
		target, exists := snap.Members[targetID]
		if !exists {
			return fail(apperrors.CodeTargetNotInParty, "target not in party"), nil
		}
		leader := snap.Members[actorID]
		leader.Role = target.Role
		if leader.Role == RoleLeader {
			leader.Role = RoleModerator
		}
		target.Role = RoleLeader
		snap.Members[actorID] = leader
		snap.Members[targetID] = target
		snap.LeaderID = targetID
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionTransferred, actorID, targetID, "")
		return ok(snap), nil
	})
}

// Kick implements kick: leader or moderator; moderators cannot kick
// moderators or the leader.
func (c *Coordinator) Kick(ctx context.Context, actorID, partyID, targetID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		actor, isMember := snap.Members[actorID]
		if !isMember || (actor.Role != RoleLeader && actor.Role != RoleModerator) {
			return fail(apperrors.CodeNotModerator, "must be leader or moderator to kick"), nil
		}
		target, exists := snap.Members[targetID]
		if !exists {
			return fail(apperrors.CodeTargetNotInParty, "target not in party"), nil
		}
		if actor.Role == RoleModerator && (target.Role == RoleModerator || target.Role == RoleLeader) {
			return fail(apperrors.CodeNotModerator, "moderators cannot kick moderators or the leader"), nil
		}

		delete(snap.Members, targetID)
		_ = c.clearLookup(ctx, targetID)
		snap.refreshIdleGrace(time.Now(), c.cfg.IdleGrace)
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionMemberKicked, actorID, targetID, "")
		return ok(snap), nil
	})
}

// KickOffline implements kickOffline: removes every non-leader member
// that is offline and has been silent past the threshold.
func (c *Coordinator) KickOffline(ctx context.Context, partyID string, offlineThreshold time.Duration) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		now := time.Now()
		var removed []string
		for id, m := range snap.Members {
			if m.Role == RoleLeader {
				continue
			}
			if !m.Online && now.Sub(m.LastSeenAt) >= offlineThreshold {
				delete(snap.Members, id)
				_ = c.clearLookup(ctx, id)
				removed = append(removed, id)
			}
		}
		if len(removed) == 0 {
			return ok(snap), nil
		}
		snap.refreshIdleGrace(now, c.cfg.IdleGrace)
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		for _, id := range removed {
			c.publish(ctx, snap, busproto.PartyActionMemberKicked, "", id, "offline timeout")
		}
		return ok(snap), nil
	})
}

// ToggleMute implements toggleMute: leader or moderator.
func (c *Coordinator) ToggleMute(ctx context.Context, actorID, partyID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if !isLeaderOrModerator(snap, actorID) {
			return fail(apperrors.CodeNotModerator, "must be leader or moderator"), nil
		}
		snap.Settings.Muted = !snap.Settings.Muted
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionSettingsUpdated, actorID, "", "mute toggled")
		return ok(snap), nil
	})
}

// UpdateSettings implements updateSettings: leader or moderator; replaces
// the whole settings struct after validating Joinable.
func (c *Coordinator) UpdateSettings(ctx context.Context, actorID, partyID string, settings Settings) (Result, error) {
	switch settings.Joinable {
	case JoinableOpen, JoinableInviteOnly, JoinableClosed:
	default:
		return fail(apperrors.CodeUnknown, "invalid joinable value"), nil
	}

	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		if !isLeaderOrModerator(snap, actorID) {
			return fail(apperrors.CodeNotModerator, "must be leader or moderator"), nil
		}
		snap.Settings = settings
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionSettingsUpdated, actorID, "", "")
		return ok(snap), nil
	})
}

// RefreshPresence implements refreshPresence, called on connect/
// disconnect to update a member's online/lastSeenAt/username.
func (c *Coordinator) RefreshPresence(ctx context.Context, playerID, username string, online bool) (Result, error) {
	partyID, err := c.lookupParty(ctx, playerID)
	if err != nil || partyID == "" {
		return ok(nil), nil // not in a party; nothing to refresh
	}

	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return ok(nil), nil
		}
		m, exists := snap.Members[playerID]
		if !exists {
			return ok(nil), nil
		}
		m.Online = online
		m.LastSeenAt = time.Now()
		if username != "" {
			m.Username = username
		}
		snap.Members[playerID] = m
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		return ok(snap), nil
	})
}

// SetActiveReservation implements setActiveReservation: binds the
// party's active reservation/target server and publishes
// RESERVATION_CREATED.
func (c *Coordinator) SetActiveReservation(ctx context.Context, partyID, reservationID, targetServerID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		snap.ActiveReservationID = reservationID
		snap.ActiveServerID = targetServerID
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionReservationCreated, "", "", "")
		return ok(snap), nil
	})
}

// ClearActiveReservation implements clearActiveReservation: it removes the
// party's reservation binding and publishes RESERVATION_CLAIMED. The
// reservation service's Claim does not call it.
func (c *Coordinator) ClearActiveReservation(ctx context.Context, partyID string) (Result, error) {
	return c.withPartyLock(ctx, partyID, func() (Result, error) {
		snap, err := c.loadSnapshot(ctx, partyID)
		if err != nil {
			return fail(apperrors.CodeNotInParty, fmtNotFoundMsg(partyID)), nil
		}
		snap.ActiveReservationID = ""
		snap.ActiveServerID = ""
		snap.touch()
		if err := c.saveSnapshot(ctx, snap); err != nil {
			return Result{}, err
		}
		c.publish(ctx, snap, busproto.PartyActionReservationClaimed, "", "", "")
		return ok(snap), nil
	})
}
