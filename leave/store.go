/*
store.go - Collaborator interfaces consumed by the leave package

PURPOSE:
  The engine never talks to a database directly. These interfaces describe
  exactly what it needs from persistence and configuration; store/memory
  and store/sqlite implement all of them.

KEY INTERFACES:
  RequestStore:    list/get/create/update/delete leave requests
  UserStore:       list/get users, save profile fields
  WorkflowConfig:  approval chain for a user
  RuleConfig:      warning rules
  CategoryConfig:  leave category definitions (optional)
  AttachmentStore: opaque upload/delete of request attachments (optional)

ERRORS:
  Get* return an error matching generic.ErrNotFound when the id is unknown.
  Any other error is treated as a collaborator failure and propagated.

SEE ALSO:
  - overtime/store.go: Settlement persistence and the snapshot writer
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

type RequestStore interface {
	ListRequests(ctx context.Context) ([]Request, error)
	GetRequest(ctx context.Context, id generic.RequestID) (Request, error)
	CreateRequest(ctx context.Context, r Request) error
	UpdateRequest(ctx context.Context, r Request) error
	DeleteRequest(ctx context.Context, id generic.RequestID) error
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id generic.UserID) (User, error)

	// SaveUser creates or updates a user's profile and annual quota.
	// It never writes Quota.Overtime.
	SaveUser(ctx context.Context, u User) error
}

type WorkflowConfig interface {
	// GroupForUser returns the approval chain that applies to the user.
	GroupForUser(ctx context.Context, userID generic.UserID) (WorkflowGroup, error)
}

type RuleConfig interface {
	ListWarningRules(ctx context.Context) ([]WarningRule, error)
}

type CategoryConfig interface {
	ListCategories(ctx context.Context) ([]CategoryDef, error)
}

// Store is everything RequestService needs from persistence.
type Store interface {
	RequestStore
	UserStore
	WorkflowConfig
	RuleConfig
}
