package reservation

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/kv"
	"github.com/haroldsh/fulcrum/internal/obs"
)

// fakePartyCoordinator records SetActiveReservation calls without needing
// a real party.Coordinator; reservation.Service only depends on the
// narrow PartyCoordinator capability interface.
type fakePartyCoordinator struct {
	lastPartyID, lastReservationID, lastServerID string
	err                                          error
}

func (f *fakePartyCoordinator) SetActiveReservation(ctx context.Context, partyID, reservationID, targetServerID string) error {
	f.lastPartyID, f.lastReservationID, f.lastServerID = partyID, reservationID, targetServerID
	return f.err
}

func newTestService(t *testing.T, catalog *Catalog, parties PartyCoordinator) *Service {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	b := bus.New(client, obs.NewDefault("test"))
	t.Cleanup(func() { _ = b.Close() })
	return New(kv.NewMemoryStore(), b, obs.NewDefault("test"), catalog, parties, time.Minute)
}

func TestReserveExceedingMaxTeamSizeNamesFamilyAndVariant(t *testing.T) {
	catalog := NewCatalog()
	catalog.Put(FamilyVariantInfo{Family: "duels", Variant: "1v1", MinTeamSize: 1, MaxTeamSize: 2, TeamCount: 2})
	svc := newTestService(t, catalog, &fakePartyCoordinator{})

	members := make([]PartyMember, 5)
	for i := range members {
		members[i] = PartyMember{PlayerID: string(rune('a' + i)), Online: true}
	}

	_, err := svc.Reserve(context.Background(), "party-1", "duels", "1v1", "server-1", members)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTeamSizeExceeded, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "duels")
	assert.Contains(t, err.Error(), "1v1")
}

func TestReserveNoOnlineMembersFails(t *testing.T) {
	catalog := NewCatalog()
	catalog.Put(FamilyVariantInfo{Family: "duels", Variant: "1v1", MinTeamSize: 1, MaxTeamSize: 5, TeamCount: 2})
	svc := newTestService(t, catalog, &fakePartyCoordinator{})

	members := []PartyMember{{PlayerID: "p1", Online: false}, {PlayerID: "p2", Online: false}}
	_, err := svc.Reserve(context.Background(), "party-1", "duels", "1v1", "server-1", members)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoOnlineMembers, apperrors.CodeOf(err))
}

func TestReserveSucceedsAndBindsActivePartyReservation(t *testing.T) {
	catalog := NewCatalog()
	catalog.Put(FamilyVariantInfo{Family: "duels", Variant: "1v1", MinTeamSize: 1, MaxTeamSize: 5, TeamCount: 2})
	parties := &fakePartyCoordinator{}
	svc := newTestService(t, catalog, parties)

	members := []PartyMember{{PlayerID: "p1", Online: true}, {PlayerID: "p2", Online: false}}
	snap, err := svc.Reserve(context.Background(), "party-1", "duels", "1v1", "server-1", members)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Tokens, 1, "only online members receive tokens")
	_, hasToken := snap.Tokens["p1"]
	assert.True(t, hasToken)

	assert.Equal(t, "party-1", parties.lastPartyID)
	assert.Equal(t, snap.ReservationID, parties.lastReservationID)
	assert.Equal(t, "server-1", parties.lastServerID)
}

func TestClaimMarksTokenClaimedAndRejectsDoubleClaim(t *testing.T) {
	catalog := NewCatalog()
	catalog.Put(FamilyVariantInfo{Family: "duels", Variant: "1v1", MinTeamSize: 1, MaxTeamSize: 5, TeamCount: 2})
	svc := newTestService(t, catalog, &fakePartyCoordinator{})

	members := []PartyMember{{PlayerID: "p1", Online: true}}
	snap, err := svc.Reserve(context.Background(), "party-1", "duels", "1v1", "server-1", members)
	require.NoError(t, err)

	require.NoError(t, svc.Claim(context.Background(), snap.ReservationID, "p1"))

	err = svc.Claim(context.Background(), snap.ReservationID, "p1")
	require.Error(t, err, "claiming an already-claimed token must fail")
}

func TestClaimUnknownPlayerFails(t *testing.T) {
	catalog := NewCatalog()
	catalog.Put(FamilyVariantInfo{Family: "duels", Variant: "1v1", MinTeamSize: 1, MaxTeamSize: 5, TeamCount: 2})
	svc := newTestService(t, catalog, &fakePartyCoordinator{})

	members := []PartyMember{{PlayerID: "p1", Online: true}}
	snap, err := svc.Reserve(context.Background(), "party-1", "duels", "1v1", "server-1", members)
	require.NoError(t, err)

	err = svc.Claim(context.Background(), snap.ReservationID, "not-a-member")
	require.Error(t, err)
}
