// Package reservation implements match-reservation token issuance: given
// a party snapshot, family/variant, and target server, it builds one
// token per online member, persists a ReservationSnapshot in the shared
// KV store, and broadcasts PartyReservationCreatedMessage.
package reservation

import (
	"fmt"
	"time"
)

// FamilyVariantInfo describes team-size constraints for one (family,
// variant) pair, consulted by the reservation service (spec §4.F).
type FamilyVariantInfo struct {
	Family      string
	Variant     string
	MinTeamSize int
	MaxTeamSize int
	TeamCount   int
}

// hardSizeCap sizes the last-resort FamilyVariantInfo that fallbackInfo
// returns when no catalog entry exists for the family at all (spec §4.F
// step 3).
const hardSizeCap = 15

func fallbackInfo(family, variant string) FamilyVariantInfo {
	return FamilyVariantInfo{Family: family, Variant: variant, MinTeamSize: hardSizeCap, MaxTeamSize: hardSizeCap, TeamCount: 1}
}

// Token is a single member's reservation token, single-use; claiming it
// is an external concern (the target server's join-guard).
type Token struct {
	PlayerID  string    `json:"playerId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Claimed   bool      `json:"claimed"`
}

// Snapshot is the persisted reservation record, stored under
// fulcrum:party:reservation:<id>.
type Snapshot struct {
	ReservationID  string           `json:"reservationId"`
	PartyID        string           `json:"partyId"`
	FamilyID       string           `json:"familyId"`
	VariantID      string           `json:"variantId"`
	TargetServerID string           `json:"targetServerId"`
	Tokens         map[string]Token `json:"tokens"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      time.Time        `json:"expiresAt"`
}

func reservationKey(id string) string { return fmt.Sprintf("fulcrum:party:reservation:%s", id) }
