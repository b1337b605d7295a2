package party

import (
	"context"
	"encoding/json"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
)

// RegisterRPC subscribes the coordinator to ChannelPartyOperationRequest,
// dispatching each request to the matching operation and replying on the
// per-request response channel, the same request/response shape the
// registry uses for ChannelRegistrationRequest.
func (c *Coordinator) RegisterRPC() error {
	return c.bus.Subscribe(busproto.ChannelPartyOperationRequest, c.handleOperationRequest)
}

func (c *Coordinator) handleOperationRequest(ctx context.Context, ev bus.Event) error {
	var req busproto.PartyOperationRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		return err
	}

	result, err := c.dispatch(ctx, req)
	resp := busproto.PartyOperationResponse{RequestID: req.RequestID}
	switch {
	case err != nil:
		resp.Code = string(apperrors.CodeOf(err))
		resp.Message = err.Error()
	case result.Code != "":
		resp.Code = string(result.Code)
		resp.Message = result.Message
	default:
		resp.Code = "OK"
		if result.Snapshot != nil {
			if raw, merr := json.Marshal(result.Snapshot); merr == nil {
				resp.Snapshot = raw
			}
		}
	}
	return c.bus.Send(ctx, busproto.PartyOperationResponseChannel(req.RequestID), resp)
}

func (c *Coordinator) dispatch(ctx context.Context, req busproto.PartyOperationRequest) (Result, error) {
	switch req.Action {
	case busproto.PartyOpInvite:
		return c.InvitePlayer(ctx, req.ActorID, req.ActorUsername, req.TargetID)
	case busproto.PartyOpAcceptInvite:
		return c.AcceptInvite(ctx, req.ActorID, req.ActorUsername, req.PartyID)
	case busproto.PartyOpDeclineInvite:
		return c.DeclineInvite(ctx, req.ActorID, req.PartyID)
	case busproto.PartyOpLeave:
		return c.LeaveParty(ctx, req.ActorID)
	case busproto.PartyOpDisband:
		return c.DisbandParty(ctx, req.ActorID, req.PartyID)
	case busproto.PartyOpPromote:
		return c.Promote(ctx, req.ActorID, req.PartyID, req.TargetID)
	case busproto.PartyOpDemote:
		return c.Demote(ctx, req.ActorID, req.PartyID, req.TargetID)
	case busproto.PartyOpTransferLeader:
		return c.TransferLeadership(ctx, req.ActorID, req.PartyID, req.TargetID)
	case busproto.PartyOpKick:
		return c.Kick(ctx, req.ActorID, req.PartyID, req.TargetID)
	case busproto.PartyOpToggleMute:
		return c.ToggleMute(ctx, req.ActorID, req.PartyID)
	case busproto.PartyOpUpdateSettings:
		return c.UpdateSettings(ctx, req.ActorID, req.PartyID, settingsFromProto(req.Settings))
	case busproto.PartyOpRefreshPresence:
		return c.RefreshPresence(ctx, req.ActorID, req.ActorUsername, req.Online)
	default:
		return Result{}, apperrors.New(apperrors.CodeUnknown, "unknown party operation: "+string(req.Action))
	}
}

func settingsFromProto(s *busproto.Settings) Settings {
	if s == nil {
		return DefaultSettings()
	}
	return Settings{Muted: s.Muted, Joinable: Joinable(s.Joinable), CrossFamily: s.CrossFamily}
}
