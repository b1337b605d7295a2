package party

import "fmt"

func dataKey(partyID string) string { return fmt.Sprintf("fulcrum:party:data:%s", partyID) }

func lookupKey(playerID string) string { return fmt.Sprintf("fulcrum:party:lookup:%s", playerID) }

func inviteKey(targetID, partyID string) string {
	return fmt.Sprintf("fulcrum:party:invite:%s:%s", targetID, partyID)
}

func lockKey(partyID string) string { return fmt.Sprintf("fulcrum:party:lock:%s", partyID) }

const activeSetKey = "fulcrum:party:active"

func reservationKey(reservationID string) string {
	return fmt.Sprintf("fulcrum:party:reservation:%s", reservationID)
}
