package busproto

import "encoding/json"

// ServerRegistrationRequest is published on ChannelRegistrationRequest and
// broadcast again in response to a RegistryReregistrationRequest.
type ServerRegistrationRequest struct {
	TempID       string `json:"tempId"`
	ServerID     string `json:"serverId"`
	ServerType   string `json:"serverType"`
	Role         string `json:"role"`
	Address      string `json:"address"`
	Port         int    `json:"port"`
	MaxCapacity  int    `json:"maxCapacity"`
	Family       string `json:"family,omitempty"`
	InstanceUUID string `json:"instanceUuid"`
}

// ServerRegistrationResponse answers a ServerRegistrationRequest, either on
// ChannelRegistrationResponse or the per-request RegistrationResponseChannel.
type ServerRegistrationResponse struct {
	TempID           string `json:"tempId"`
	Success          bool   `json:"success"`
	AssignedServerID string `json:"assignedServerId"`
	ProxyID          string `json:"proxyId"`
	Message          string `json:"message"`
}

// ServerHeartbeatMessage is published every heartbeat interval on
// ChannelServerHeartbeat.
type ServerHeartbeatMessage struct {
	ServerID       string   `json:"serverId"`
	ServerType     string   `json:"serverType"`
	TPS            float64  `json:"tps"`
	PlayerCount    int      `json:"playerCount"`
	MaxCapacity    int      `json:"maxCapacity"`
	UptimeSeconds  int64    `json:"uptime"`
	Role           string   `json:"role"`
	AvailablePools []string `json:"availablePools"`
}

// ServerAnnouncementMessage is published on ChannelServerAnnouncement
// whenever a server's advertised state changes.
type ServerAnnouncementMessage struct {
	ServerID    string `json:"serverId"`
	ServerType  string `json:"serverType"`
	Environment string `json:"environment"`
	Role        string `json:"role"`
	MaxCapacity int    `json:"maxCapacity"`
	Address     string `json:"address"`
	Port        int    `json:"port"`
}

// ProxyAnnouncementMessage is published on ChannelProxyAnnouncement.
type ProxyAnnouncementMessage struct {
	ProxyID            string `json:"proxyId"`
	Address            string `json:"address"`
	Capacity           int    `json:"capacity"`
	CurrentPlayerCount int    `json:"currentPlayerCount"`
	HardCap            int    `json:"hardCap"`
}

// PartyAction enumerates the action values carried on PartyUpdateMessage.
type PartyAction string

const (
	PartyActionCreated            PartyAction = "CREATED"
	PartyActionInviteSent         PartyAction = "INVITE_SENT"
	PartyActionInviteAccepted     PartyAction = "INVITE_ACCEPTED"
	PartyActionInviteRevoked      PartyAction = "INVITE_REVOKED"
	PartyActionInviteExpired      PartyAction = "INVITE_EXPIRED"
	PartyActionMemberLeft         PartyAction = "MEMBER_LEFT"
	PartyActionMemberKicked       PartyAction = "MEMBER_KICKED"
	PartyActionRoleChanged        PartyAction = "ROLE_CHANGED"
	PartyActionTransferred        PartyAction = "TRANSFERRED"
	PartyActionSettingsUpdated    PartyAction = "SETTINGS_UPDATED"
	PartyActionDisbanded          PartyAction = "DISBANDED"
	PartyActionReservationCreated PartyAction = "RESERVATION_CREATED"
	PartyActionReservationClaimed PartyAction = "RESERVATION_CLAIMED"
)

// PartyUpdateMessage is published on ChannelPartyUpdate after every party
// mutation. Snapshot carries the raw JSON of the party's current state so
// this package never imports the party package (which, conversely, imports
// this one to publish).
type PartyUpdateMessage struct {
	PartyID   string          `json:"partyId"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Action    PartyAction     `json:"action"`
	ActorID   string          `json:"actorId"`
	TargetID  string          `json:"targetId,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PartyReservationCreatedMessage is published on
// ChannelPartyReservationCreated once a reservation is persisted.
type PartyReservationCreatedMessage struct {
	ReservationID  string          `json:"reservationId"`
	PartyID        string          `json:"partyId"`
	FamilyID       string          `json:"familyId"`
	VariantID      string          `json:"variantId"`
	TargetServerID string          `json:"targetServerId"`
	Reservation    json.RawMessage `json:"reservation"`
}

// ServerEvacuationRequest is published on ChannelEvacuationRequest.
type ServerEvacuationRequest struct {
	ServerID string `json:"serverId"`
	Reason   string `json:"reason"`
}

// ServerEvacuationResponse answers a ServerEvacuationRequest on
// ChannelEvacuationResponse.
type ServerEvacuationResponse struct {
	ServerID  string   `json:"serverId"`
	OK        bool     `json:"ok"`
	Evacuated []string `json:"evacuated"`
	Failed    []string `json:"failed"`
	Message   string   `json:"message"`
}

// ServerRemovalNotification is published on ChannelServerRemoved.
type ServerRemovalNotification struct {
	ServerID string `json:"serverId"`
	Reason   string `json:"reason"`
}

// PartyOperationAction enumerates the operation PartyOperationRequest asks
// the party daemon to perform.
type PartyOperationAction string

const (
	PartyOpInvite            PartyOperationAction = "INVITE"
	PartyOpAcceptInvite      PartyOperationAction = "ACCEPT_INVITE"
	PartyOpDeclineInvite     PartyOperationAction = "DECLINE_INVITE"
	PartyOpLeave             PartyOperationAction = "LEAVE"
	PartyOpDisband           PartyOperationAction = "DISBAND"
	PartyOpPromote           PartyOperationAction = "PROMOTE"
	PartyOpDemote            PartyOperationAction = "DEMOTE"
	PartyOpTransferLeader    PartyOperationAction = "TRANSFER_LEADER"
	PartyOpKick              PartyOperationAction = "KICK"
	PartyOpToggleMute        PartyOperationAction = "TOGGLE_MUTE"
	PartyOpUpdateSettings    PartyOperationAction = "UPDATE_SETTINGS"
	PartyOpRefreshPresence   PartyOperationAction = "REFRESH_PRESENCE"
)

// PartyOperationRequest is published on ChannelPartyOperationRequest; the
// party daemon replies on PartyOperationResponseChannel(RequestID).
type PartyOperationRequest struct {
	RequestID     string               `json:"requestId"`
	Action        PartyOperationAction `json:"action"`
	ActorID       string               `json:"actorId"`
	ActorUsername string               `json:"actorUsername,omitempty"`
	PartyID       string               `json:"partyId,omitempty"`
	TargetID      string               `json:"targetId,omitempty"`
	Online        bool                 `json:"online,omitempty"`
	Settings      *Settings            `json:"settings,omitempty"`
}

// Settings mirrors the party package's Settings shape so busproto stays
// free of a dependency on internal/party.
type Settings struct {
	Muted       bool   `json:"muted"`
	Joinable    string `json:"joinable"`
	CrossFamily bool   `json:"crossFamily"`
}

// PartyOperationResponse answers a PartyOperationRequest.
type PartyOperationResponse struct {
	RequestID string          `json:"requestId"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
}

// ReservationMemberRef names one candidate reservation member and whether
// they're currently online, as supplied by the requester.
type ReservationMemberRef struct {
	PlayerID string `json:"playerId"`
	Online   bool   `json:"online"`
}

// ReservationRequest is published on ChannelReservationRequest; the party
// daemon replies on ReservationResponseChannel(RequestID).
type ReservationRequest struct {
	RequestID      string                  `json:"requestId"`
	PartyID        string                  `json:"partyId"`
	FamilyID       string                  `json:"familyId"`
	VariantID      string                  `json:"variantId"`
	TargetServerID string                  `json:"targetServerId"`
	Members        []ReservationMemberRef  `json:"members"`
}

// ReservationResponse answers a ReservationRequest.
type ReservationResponse struct {
	RequestID string          `json:"requestId"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
}

// ReservationClaimRequest is published on ChannelReservationClaimRequest;
// the party daemon replies on ReservationClaimResponseChannel(RequestID).
type ReservationClaimRequest struct {
	RequestID     string `json:"requestId"`
	ReservationID string `json:"reservationId"`
	PlayerID      string `json:"playerId"`
}

// ReservationClaimResponse answers a ReservationClaimRequest.
type ReservationClaimResponse struct {
	RequestID string `json:"requestId"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RegistryReregistrationRequest is broadcast by a restarted registry to
// ask every live agent to resend its ServerRegistrationRequest.
type RegistryReregistrationRequest struct {
	RegistryInstanceID string `json:"registryInstanceId"`
}
