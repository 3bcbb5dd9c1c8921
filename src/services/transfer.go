package services

import (
	"context"
	"errors"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/storage"
)

func (s *GroupService) CreateTransferRequest(ctx context.Context, caller string, groupID uint64, to string) (models.TransferRequest, error) {
	var req models.TransferRequest
	err := s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if group.Owner != caller {
			return apierr.Unauthorized("only the owner can transfer ownership")
		}
		if _, err := s.store.GetTransferRequest(ctx, groupID); err == nil {
			return apierr.Duplicate("a transfer request is already pending")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if to == caller {
			return apierr.BadRequest("cannot transfer ownership to yourself")
		}
		recipient, err := s.store.GetMember(ctx, to)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if !recipient.IsGroupJoined(groupID) {
			return apierr.BadRequest("recipient is not a member of this group")
		}

		req = models.TransferRequest{GroupID: groupID, From: caller, To: to, CreatedAt: s.timestamp()}
		if err := s.store.InsertTransferRequest(ctx, req); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apierr.Duplicate("a transfer request is already pending")
			}
			return err
		}
		return nil
	})
	return req, err
}

func (s *GroupService) CancelTransferRequest(ctx context.Context, caller string, groupID uint64) error {
	return s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if group.Owner != caller {
			return apierr.Unauthorized("only the owner can cancel a transfer request")
		}
		deleted, err := s.store.DeleteTransferRequest(ctx, groupID)
		if err != nil {
			return err
		}
		if !deleted {
			return apierr.NotFound("transfer request not found")
		}
		return nil
	})
}

// AcceptOrDeclineTransferRequest is actionable only by the recipient. On
// accept the old owner becomes a plain member and the recipient the owner.
// Accepting a request whose recipient has since left fails and leaves the
// request in place; declining or cancelling clears it.
func (s *GroupService) AcceptOrDeclineTransferRequest(ctx context.Context, caller string, groupID uint64, accept bool) error {
	err := s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		req, err := s.store.GetTransferRequest(ctx, groupID)
		if err != nil {
			return notFound(err, "transfer request")
		}
		if req.To != caller {
			return apierr.Unauthorized("only the recipient can answer a transfer request")
		}
		if _, err := s.store.DeleteTransferRequest(ctx, groupID); err != nil {
			return err
		}
		if !accept {
			return nil
		}

		recipient, err := s.loadMember(ctx, req.To)
		if err != nil {
			return err
		}
		if !recipient.IsGroupJoined(groupID) {
			return apierr.BadRequest("recipient is no longer a member of this group")
		}
		previous, err := s.loadMember(ctx, group.Owner)
		if err != nil {
			return err
		}

		now := s.timestamp()
		group.Owner = req.To
		group.UpdatedAt = now
		if err := s.store.UpdateGroup(ctx, group, NameKey(group.Name)); err != nil {
			return err
		}
		if err := s.replaceRoles(ctx, previous, groupID, []string{models.MemberRole}, now); err != nil {
			return err
		}
		return s.replaceRoles(ctx, recipient, groupID, []string{models.OwnerRole}, now)
	})
	if err != nil {
		return err
	}
	if accept {
		s.metrics.Inc("ownership_transfer_total")
		s.logger.Info("group ownership transferred", "group_id", groupID, "principal", caller)
	}
	return nil
}

func (s *GroupService) replaceRoles(ctx context.Context, member models.Member, groupID uint64, roles []string, now int64) error {
	join, ok := member.Joined[groupID]
	if !ok {
		return nil
	}
	join.Roles = roles
	join.UpdatedAt = now
	if err := s.store.PutJoin(ctx, member.Principal, groupID, join); err != nil {
		return err
	}
	return s.recordRoles(ctx, groupID, member.Principal, roles, models.RoleChangeReplace, now)
}

func (s *GroupService) GetTransferRequest(ctx context.Context, groupID uint64) (models.TransferRequest, error) {
	req, err := s.store.GetTransferRequest(ctx, groupID)
	return req, notFound(err, "transfer request")
}

// GetFromTransferRequests lists pending requests made by principal.
func (s *GroupService) GetFromTransferRequests(ctx context.Context, principal string) ([]models.TransferRequest, error) {
	return s.filterTransferRequests(ctx, func(req models.TransferRequest) bool { return req.From == principal })
}

// GetToTransferRequests lists pending requests addressed to principal.
func (s *GroupService) GetToTransferRequests(ctx context.Context, principal string) ([]models.TransferRequest, error) {
	return s.filterTransferRequests(ctx, func(req models.TransferRequest) bool { return req.To == principal })
}

func (s *GroupService) filterTransferRequests(ctx context.Context, keep func(models.TransferRequest) bool) ([]models.TransferRequest, error) {
	all, err := s.store.ListTransferRequests(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.TransferRequest, 0)
	for _, req := range all {
		if keep(req) {
			out = append(out, req)
		}
	}
	return out, nil
}
