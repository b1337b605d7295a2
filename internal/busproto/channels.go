// Package busproto defines the pub/sub channel names and message payload
// shapes shared across fulcrum processes. Channel names must match the
// spec byte-exactly for interop, so they are constants, never built with
// fmt.Sprintf except where a server or request id is explicitly part of
// the name.
package busproto

import "fmt"

const (
	ChannelRegistrationRequest      = "registry:registration:request"
	ChannelRegistrationResponse     = "server:registration:response"
	ChannelServerHeartbeat          = "server:heartbeat"
	ChannelServerAnnouncement       = "server:announcement"
	ChannelServerRemoved            = "server:removed"
	ChannelEvacuationRequest        = "server:evacuation:request"
	ChannelEvacuationResponse       = "server:evacuation:response"
	ChannelProxyAnnouncement        = "proxy:announcement"
	ChannelProxyRequestRegistration = "proxy:request-registrations"
	ChannelPartyUpdate              = "party:update"
	ChannelPartyReservationCreated  = "party:reservation:created"
	ChannelPartyOperationRequest    = "party:operation:request"
	ChannelReservationRequest       = "reservation:request"
	ChannelReservationClaimRequest  = "reservation:claim:request"
)

// RegistrationResponseChannel returns the per-server registration
// response channel: server:registration:response:<serverId>.
func RegistrationResponseChannel(serverID string) string {
	return fmt.Sprintf("server:registration:response:%s", serverID)
}

// ServerChannel returns a server's direct inbox: server:<id>.
func ServerChannel(serverID string) string {
	return fmt.Sprintf("server:%s", serverID)
}

// ServerReregisterChannel returns server:<id>:reregister.
func ServerReregisterChannel(serverID string) string {
	return fmt.Sprintf("server:%s:reregister", serverID)
}

// ResponseChannel returns response:<id>, used by request() to correlate
// directed replies back to the requester.
func ResponseChannel(id string) string {
	return fmt.Sprintf("response:%s", id)
}

// PartyOperationResponseChannel returns party:operation:response:<requestId>.
func PartyOperationResponseChannel(requestID string) string {
	return fmt.Sprintf("party:operation:response:%s", requestID)
}

// ReservationResponseChannel returns reservation:response:<requestId>.
func ReservationResponseChannel(requestID string) string {
	return fmt.Sprintf("reservation:response:%s", requestID)
}

// ReservationClaimResponseChannel returns reservation:claim:response:<requestId>.
func ReservationClaimResponseChannel(requestID string) string {
	return fmt.Sprintf("reservation:claim:response:%s", requestID)
}

// SlotProvisionChannel returns slot:provision:<serverId>.
func SlotProvisionChannel(serverID string) string {
	return fmt.Sprintf("slot:provision:%s", serverID)
}

// PlayerRouteChannel returns server:<id>:player-route.
func PlayerRouteChannel(serverID string) string {
	return fmt.Sprintf("server:%s:player-route", serverID)
}
