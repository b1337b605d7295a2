package reservation

import (
	"context"
	"encoding/json"

	"github.com/haroldsh/fulcrum/internal/apperrors"
	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/busproto"
)

// RegisterRPC subscribes the service to ChannelReservationRequest and
// ChannelReservationClaimRequest, replying on each request's per-request
// response channel.
func (s *Service) RegisterRPC() error {
	if err := s.bus.Subscribe(busproto.ChannelReservationRequest, s.handleReserveRequest); err != nil {
		return err
	}
	return s.bus.Subscribe(busproto.ChannelReservationClaimRequest, s.handleClaimRequest)
}

func (s *Service) handleReserveRequest(ctx context.Context, ev bus.Event) error {
	var req busproto.ReservationRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		return err
	}

	members := make([]PartyMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, PartyMember{PlayerID: m.PlayerID, Online: m.Online})
	}

	snap, err := s.Reserve(ctx, req.PartyID, req.FamilyID, req.VariantID, req.TargetServerID, members)
	resp := busproto.ReservationResponse{RequestID: req.RequestID}
	if err != nil {
		resp.Code = string(apperrors.CodeOf(err))
		resp.Message = err.Error()
	} else {
		resp.Code = "OK"
		if raw, merr := json.Marshal(snap); merr == nil {
			resp.Snapshot = raw
		}
	}
	return s.bus.Send(ctx, busproto.ReservationResponseChannel(req.RequestID), resp)
}

func (s *Service) handleClaimRequest(ctx context.Context, ev bus.Event) error {
	var req busproto.ReservationClaimRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		return err
	}

	err := s.Claim(ctx, req.ReservationID, req.PlayerID)
	resp := busproto.ReservationClaimResponse{RequestID: req.RequestID}
	if err != nil {
		resp.Code = string(apperrors.CodeOf(err))
		resp.Message = err.Error()
	} else {
		resp.Code = "OK"
	}
	return s.bus.Send(ctx, busproto.ReservationClaimResponseChannel(req.RequestID), resp)
}
