package reservation

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

// PartyMember is the minimal view of a party member the reservation
// service needs: who they are and whether they're online.
type PartyMember struct {
	PlayerID string
	Online   bool
}

// PartyCoordinator is the capability the reservation service needs from
// the party coordinator, kept as a narrow interface so this package never
// imports the party package's full mutation surface.
type PartyCoordinator interface {
	SetActiveReservation(ctx context.Context, partyID, reservationID, targetServerID string) error
}

// Service issues match-reservation tokens (spec §4.F).
type Service struct {
	store    kv.Store
	bus      *bus.Bus
	log      *obs.Logger
	catalog  *Catalog
	parties  PartyCoordinator
	tokenTTL time.Duration
	metrics  *metrics.Metrics
}

// New creates a reservation Service.
func New(store kv.Store, b *bus.Bus, log *obs.Logger, catalog *Catalog, parties PartyCoordinator, tokenTTL time.Duration) *Service {
	return &Service{store: store, bus: b, log: log, catalog: catalog, parties: parties, tokenTTL: tokenTTL, metrics: metrics.Global()}
}

// Reserve implements the §4.F sequence: validate online members and team
// size, build tokens, persist, bind the party's active reservation, and
// broadcast PartyReservationCreatedMessage.
func (s *Service) Reserve(ctx context.Context, partyID, familyID, variantID, targetServerID string, members []PartyMember) (*Snapshot, error) {
	var online []PartyMember
	for _, m := range members {
		if m.Online {
			online = append(online, m)
		}
	}
	if len(online) == 0 {
		s.metrics.RecordReservation(familyID, string(apperrors.CodeNoOnlineMembers))
		return nil, apperrors.New(apperrors.CodeNoOnlineMembers, "no online party members to reserve for")
	}

	info := s.catalog.Lookup(familyID, variantID)
	if len(members) > info.MaxTeamSize {
		s.metrics.RecordReservation(familyID, string(apperrors.CodeTeamSizeExceeded))
		return nil, apperrors.New(apperrors.CodeTeamSizeExceeded,
			fmt.Sprintf("party size %d exceeds max team size %d for %s/%s", len(members), info.MaxTeamSize, familyID, variantID))
	}

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	tokens := make(map[string]Token, len(online))
	for _, m := range online {
		tokens[m.PlayerID] = Token{PlayerID: m.PlayerID, ExpiresAt: expiresAt}
	}

	snap := &Snapshot{
		ReservationID:  uuid.NewString(),
		PartyID:        partyID,
		FamilyID:       familyID,
		VariantID:      variantID,
		TargetServerID: targetServerID,
		Tokens:         tokens,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetEX(ctx, reservationKey(snap.ReservationID), string(data), s.tokenTTL); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSaveFailed, "failed to persist reservation", err)
	}

	if err := s.parties.SetActiveReservation(ctx, partyID, snap.ReservationID, targetServerID); err != nil {
		s.log.With(nil).WithError(err).Warn("reservation: failed to bind active reservation on party")
	}

	if err := s.bus.Broadcast(ctx, busproto.ChannelPartyReservationCreated, busproto.PartyReservationCreatedMessage{
		ReservationID:  snap.ReservationID,
		PartyID:        partyID,
		FamilyID:       familyID,
		VariantID:      variantID,
		TargetServerID: targetServerID,
		Reservation:    data,
	}); err != nil {
		s.log.With(nil).WithError(err).Warn("reservation: failed to broadcast reservation created")
	}

	s.metrics.RecordReservation(familyID, "OK")
	return snap, nil
}

// Claim marks a reservation token as used; claiming is otherwise the
// external join-guard's concern (spec §4.F).
func (s *Service) Claim(ctx context.Context, reservationID, playerID string) error {
	raw, err := s.store.Get(ctx, reservationKey(reservationID))
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return err
	}
	token, ok := snap.Tokens[playerID]
	if !ok {
		return apperrors.New(apperrors.CodeUnknown, "no reservation token for player")
	}
	if token.Claimed {
		return apperrors.New(apperrors.CodeUnknown, "reservation token already claimed")
	}
	token.Claimed = true
	snap.Tokens[playerID] = token

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttl := time.Until(snap.ExpiresAt)
	if ttl <= 0 {
		return apperrors.New(apperrors.CodeUnknown, "reservation expired")
	}
	return s.store.SetEX(ctx, reservationKey(reservationID), string(data), ttl)
}
