package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"group-registry/src/lib"
	"group-registry/src/models"
	"group-registry/src/storage"
)

// roleChangeEventKind is the nostr kind used for signed role-change records.
const roleChangeEventKind = 39005

// HistoryRecorder signs and persists role-change audit records.
type HistoryRecorder struct {
	store   storage.HistoryStore
	pubKey  string
	privKey string
	metrics *lib.Metrics
}

func NewHistoryRecorder(store storage.HistoryStore, pubKey, privKey string, metrics *lib.Metrics) *HistoryRecorder {
	return &HistoryRecorder{store: store, pubKey: pubKey, privKey: privKey, metrics: metrics}
}

// Record signs a role change and appends it in the caller's transaction.
func (h *HistoryRecorder) Record(ctx context.Context, groupID uint64, principal string, roles []string, kind models.RoleChangeKind, at int64) error {
	tags := nostr.Tags{
		{"h", strconv.FormatUint(groupID, 10)},
		{"p", principal},
		{"action", string(kind)},
	}
	for _, role := range roles {
		tags = append(tags, nostr.Tag{"role", role})
	}

	event := nostr.Event{
		CreatedAt: nostr.Timestamp(at / 1_000_000_000),
		Kind:      roleChangeEventKind,
		Tags:      tags,
		Content:   "",
	}
	if err := event.Sign(h.privKey); err != nil {
		return fmt.Errorf("sign role change event: %w", err)
	}
	if h.pubKey != "" && !strings.EqualFold(event.PubKey, h.pubKey) {
		return fmt.Errorf("signed role change event pubkey does not match registry pubkey")
	}

	if err := h.store.AppendRoleChange(ctx, models.RoleChange{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Principal: principal,
		Roles:     slices.Clone(roles),
		Kind:      kind,
		CreatedAt: at,
		EventID:   event.ID,
		Signer:    strings.ToLower(event.PubKey),
		Sig:       event.Sig,
	}); err != nil {
		return err
	}
	h.metrics.Inc("role_change_total")
	return nil
}

// VerifyRoleChange checks the signature of a stored record.
func VerifyRoleChange(change models.RoleChange) (bool, error) {
	tags := nostr.Tags{
		{"h", strconv.FormatUint(change.GroupID, 10)},
		{"p", change.Principal},
		{"action", string(change.Kind)},
	}
	for _, role := range change.Roles {
		tags = append(tags, nostr.Tag{"role", role})
	}
	event := nostr.Event{
		ID:        change.EventID,
		PubKey:    change.Signer,
		CreatedAt: nostr.Timestamp(change.CreatedAt / 1_000_000_000),
		Kind:      roleChangeEventKind,
		Tags:      tags,
		Content:   "",
		Sig:       change.Sig,
	}
	if event.GetID() != change.EventID {
		return false, nil
	}
	return event.CheckSignature()
}
