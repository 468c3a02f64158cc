// Package access turns resolved caller identity into capability checks.
// Authentication and session handling are external; every request arrives
// with an actor id and role already resolved, and handlers consult a
// Resolver before mutating anything.
package access

import (
	"context"

	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// Action is a capability being requested.
type Action string

const (
	// ActionEvaluate casts or withdraws a vote.
	ActionEvaluate Action = "evaluate"
	// ActionSuggest creates or deletes a suggestion.
	ActionSuggest Action = "suggest"
	// ActionReview approves or rejects a queue item.
	ActionReview Action = "review"
	// ActionRollback restores a prior version; stricter than review.
	ActionRollback Action = "rollback"
)

// Resolver authorizes an actor's action on a document.
type Resolver interface {
	Can(ctx context.Context, actor models.Actor, action Action, documentID string) error
}

// RoleResolver authorizes from the actor's role and document ownership.
// External deployments can substitute their own Resolver.
type RoleResolver struct {
	db *storage.Store
}

// NewRoleResolver creates a role-based resolver backed by the store.
func NewRoleResolver(db *storage.Store) *RoleResolver {
	return &RoleResolver{db: db}
}

// Can grants evaluate/suggest to any identified actor, review to admins and
// owners, and rollback to owners only (role owner, or the document's actual
// owner).
func (r *RoleResolver) Can(ctx context.Context, actor models.Actor, action Action, documentID string) error {
	if actor.ID == "" {
		return errdefs.Forbiddenf("caller identity required")
	}
	switch action {
	case ActionEvaluate, ActionSuggest:
		return nil
	case ActionReview:
		if actor.Role == models.RoleAdmin || actor.Role == models.RoleOwner {
			return nil
		}
		if owns, err := r.ownsDocument(ctx, actor, documentID); err != nil || owns {
			return err
		}
		return errdefs.Forbiddenf("%s requires admin permission", action)
	case ActionRollback:
		if actor.Role == models.RoleOwner {
			return nil
		}
		if owns, err := r.ownsDocument(ctx, actor, documentID); err != nil || owns {
			return err
		}
		return errdefs.Forbiddenf("%s requires owner permission", action)
	default:
		return errdefs.Forbiddenf("unknown action %s", action)
	}
}

func (r *RoleResolver) ownsDocument(ctx context.Context, actor models.Actor, documentID string) (bool, error) {
	doc, err := r.db.Read().GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	return doc.OwnerID == actor.ID, nil
}
