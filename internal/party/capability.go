package party

import "context"

// ReservationCapability adapts Coordinator to the narrow interface the
// reservation service depends on, so that package only sees the one
// operation it needs instead of the full mutation surface.
type ReservationCapability struct {
	Coordinator *Coordinator
}

// SetActiveReservation implements reservation.PartyCoordinator.
func (r ReservationCapability) SetActiveReservation(ctx context.Context, partyID, reservationID, targetServerID string) error {
	_, err := r.Coordinator.SetActiveReservation(ctx, partyID, reservationID, targetServerID)
	return err
}
