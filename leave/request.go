/*
request.go - Leave request workflow

PURPOSE:
  Orchestrates submission, editing, approval, rejection, cancellation and
  deletion of leave requests. Every check runs against one read of the
  request history before anything is written, so a rejected submission
  leaves storage untouched.

SUBMISSION ORDER:
  1. Span and category validation (format, end >= start, gender)
  2. Overlap against the user's other live requests
  3. Quota, for categories that draw from a pool
  4. Workflow lookup -> totalSteps

STATUS MACHINE:
  IN_PROCESS --approve (last step)--> APPROVED
  IN_PROCESS --approve--------------> IN_PROCESS (step + 1)
  IN_PROCESS --reject---------------> REJECTED
  IN_PROCESS | APPROVED --cancel----> CANCELLED
  IN_PROCESS | REJECTED --edit------> IN_PROCESS (step 1)

  Every transition appends to the request log. Nothing is removed from it.

SEE ALSO:
  - quota.go, overlap.go, warning.go: The pure calculations used here
  - overtime/service.go: Writes detail-review corrections to requests
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SERVICE
// =============================================================================

type RequestService struct {
	store       Store
	attachments AttachmentStore
	categories  *CategorySet
	logger      *slog.Logger
	now         func() time.Time
	newID       func() generic.RequestID
}

type Option func(*RequestService)

// WithAttachments enables attachment upload/delete.
func WithAttachments(a AttachmentStore) Option {
	return func(s *RequestService) { s.attachments = a }
}

// WithCategories replaces the default category table.
func WithCategories(c *CategorySet) Option {
	return func(s *RequestService) { s.categories = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *RequestService) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *RequestService) { s.now = now }
}

// WithIDGenerator overrides request id generation, for tests.
func WithIDGenerator(fn func() generic.RequestID) Option {
	return func(s *RequestService) { s.newID = fn }
}

func NewRequestService(store Store, opts ...Option) *RequestService {
	s := &RequestService{
		store:      store,
		categories: DefaultCategories(),
		logger:     slog.Default(),
		now:        time.Now,
		newID:      func() generic.RequestID { return generic.RequestID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCategories replaces the category table with the store's definitions.
// A store with no definitions restores the defaults.
func (s *RequestService) LoadCategories(ctx context.Context) error {
	cfg, ok := s.store.(CategoryConfig)
	if !ok {
		return nil
	}
	defs, err := cfg.ListCategories(ctx)
	if err != nil {
		return generic.Collaborator("list categories", err)
	}
	if len(defs) == 0 {
		defs = DefaultCategories().List()
	}
	s.categories.Replace(defs...)
	return nil
}

// Categories returns the active category table.
func (s *RequestService) Categories() *CategorySet {
	return s.categories
}

// =============================================================================
// DRAFTS
// =============================================================================

// Draft is a request as entered by the user. An empty ID means a new request;
// otherwise it is an edit of that request.
type Draft struct {
	ID          generic.RequestID
	UserID      generic.UserID
	Category    Category
	Span        generic.Span
	Reason      string
	Deputy      string
	Attachments []string
}

// Check is the outcome of validating a draft without writing it.
type Check struct {
	Days     generic.Amount
	Hours    generic.Amount
	Quota    *QuotaReport
	Conflict *Request
}

// OK reports whether the draft would be accepted on quota and overlap.
func (c Check) OK() bool {
	return c.Conflict == nil && (c.Quota == nil || c.Quota.Balance.Covers(c.Days))
}

// Preview runs every submission check for d and reports the outcome without
// writing anything.
func (s *RequestService) Preview(ctx context.Context, d Draft) (Check, error) {
	user, def, err := s.resolve(ctx, d)
	if err != nil {
		return Check{}, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return Check{}, generic.Collaborator("list requests", err)
	}
	return s.check(user, def, d, requests), nil
}

func (s *RequestService) check(user User, def CategoryDef, d Draft, requests []Request) Check {
	c := Check{
		Days:  Duration(d.Span, generic.UnitDays),
		Hours: Duration(d.Span, generic.UnitHours),
	}
	if conflict, ok := DetectOverlap(requests, user.ID, d.Span, d.ID); ok {
		c.Conflict = &conflict
	}
	if def.Enforced() {
		q := ComputeQuota(user, def, d.Span.StartDate.Year(), requests, d.ID)
		c.Quota = &q
	}
	return c
}

func (s *RequestService) resolve(ctx context.Context, d Draft) (User, CategoryDef, error) {
	if err := d.Span.Validate(); err != nil {
		return User{}, CategoryDef{}, err
	}
	user, err := s.getUser(ctx, d.UserID)
	if err != nil {
		return User{}, CategoryDef{}, err
	}
	def, ok := s.categories.Lookup(d.Category)
	if !ok {
		return User{}, CategoryDef{}, &CategoryError{Category: d.Category, Gender: user.Gender, Reason: "unknown category"}
	}
	if !def.AllowedFor(user.Gender) {
		return User{}, CategoryDef{}, &CategoryError{Category: def.Code, Gender: user.Gender, Reason: "restricted to " + string(def.AllowedGender)}
	}
	return user, def, nil
}

// =============================================================================
// SUBMIT / EDIT
// =============================================================================

// Submit creates a new request, or resubmits an edited one when d.ID is set.
// Overlap and quota violations are returned as *OverlapError and
// *QuotaExceededError before any write.
func (s *RequestService) Submit(ctx context.Context, d Draft) (Request, error) {
	user, def, err := s.resolve(ctx, d)
	if err != nil {
		return Request{}, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return Request{}, generic.Collaborator("list requests", err)
	}

	var existing *Request
	if d.ID != "" {
		for i := range requests {
			if requests[i].ID == d.ID {
				existing = &requests[i]
				break
			}
		}
		if existing == nil {
			return Request{}, &generic.NotFoundError{Kind: "request", ID: string(d.ID)}
		}
		if existing.UserID != d.UserID {
			return Request{}, fmt.Errorf("%w: request %s belongs to another user", generic.ErrValidation, d.ID)
		}
		if existing.Status != StatusInProcess && existing.Status != StatusRejected {
			return Request{}, &TransitionError{RequestID: d.ID, From: existing.Status, Action: LogUpdate}
		}
	}

	c := s.check(user, def, d, requests)
	if c.Conflict != nil {
		return Request{}, &OverlapError{Span: d.Span, Conflict: *c.Conflict}
	}
	if c.Quota != nil && !c.Quota.Balance.Covers(c.Days) {
		return Request{}, &QuotaExceededError{Category: def.Code, Requested: c.Days, Remaining: c.Quota.Remaining()}
	}

	group, err := s.store.GroupForUser(ctx, user.ID)
	if err != nil {
		if generic.IsNotFound(err) {
			return Request{}, ErrNoWorkflow
		}
		return Request{}, generic.Collaborator("workflow group", err)
	}
	totalSteps := group.TotalStepsFor(user)

	now := s.now().UTC()
	req := Request{
		ID:          s.newID(),
		UserID:      user.ID,
		CreatedAt:   now,
		Attachments: d.Attachments,
	}
	action := LogSubmit
	if existing != nil {
		req = existing.Clone()
		action = LogUpdate
		if d.Attachments != nil {
			req.Attachments = d.Attachments
		}
	}
	req.Category = d.Category
	req.Span = d.Span
	req.Reason = d.Reason
	req.Deputy = d.Deputy
	req.Status = StatusInProcess
	req.CurrentStep = 1
	req.TotalSteps = totalSteps
	req.ApprovedBy = nil
	req.Correction = nil
	req.UpdatedAt = now
	req.AppendLog(ApprovalLog{Action: action, ActorID: string(user.ID), ActorName: user.Name, At: now})
	if totalSteps == 0 {
		req.Status = StatusApproved
		req.CurrentStep = 0
	}

	if existing != nil {
		err = s.store.UpdateRequest(ctx, req)
	} else {
		err = s.store.CreateRequest(ctx, req)
	}
	if err != nil {
		return Request{}, generic.Collaborator("save request", err)
	}

	s.logger.InfoContext(ctx, "leave request submitted",
		slog.String("request_id", string(req.ID)),
		slog.String("user_id", string(req.UserID)),
		slog.String("category", string(req.Category)),
		slog.String("action", string(action)),
		slog.Int("total_steps", totalSteps),
	)
	return req, nil
}

// =============================================================================
// WORKFLOW TRANSITIONS
// =============================================================================

// Approve records actor's sign-off on the current step. The request becomes
// APPROVED when the last step is signed.
func (s *RequestService) Approve(ctx context.Context, id generic.RequestID, actor Actor, comment string) (Request, error) {
	return s.transition(ctx, id, LogApprove, actor, comment, func(r *Request) error {
		if r.Status != StatusInProcess {
			return &TransitionError{RequestID: id, From: r.Status, Action: LogApprove}
		}
		r.ApprovedBy = append(r.ApprovedBy, actor.ID)
		if r.CurrentStep >= r.TotalSteps {
			r.Status = StatusApproved
		} else {
			r.CurrentStep++
		}
		return nil
	})
}

// Reject ends the request as REJECTED.
func (s *RequestService) Reject(ctx context.Context, id generic.RequestID, actor Actor, comment string) (Request, error) {
	return s.transition(ctx, id, LogReject, actor, comment, func(r *Request) error {
		if r.Status != StatusInProcess {
			return &TransitionError{RequestID: id, From: r.Status, Action: LogReject}
		}
		r.Status = StatusRejected
		return nil
	})
}

// Cancel withdraws an in-process or approved request.
func (s *RequestService) Cancel(ctx context.Context, id generic.RequestID, actor Actor, comment string) (Request, error) {
	return s.transition(ctx, id, LogCancel, actor, comment, func(r *Request) error {
		if r.Status.Terminal() {
			return &TransitionError{RequestID: id, From: r.Status, Action: LogCancel}
		}
		r.Status = StatusCancelled
		return nil
	})
}

func (s *RequestService) transition(ctx context.Context, id generic.RequestID, action LogAction, actor Actor, comment string, apply func(*Request) error) (Request, error) {
	current, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return Request{}, generic.Collaborator("get request", err)
	}
	req := current.Clone()
	if err := apply(&req); err != nil {
		return Request{}, err
	}
	now := s.now().UTC()
	req.UpdatedAt = now
	req.AppendLog(ApprovalLog{Action: action, ActorID: actor.ID, ActorName: actor.Name, Comment: comment, At: now})

	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return Request{}, generic.Collaborator("update request", err)
	}
	s.logger.InfoContext(ctx, "leave request transition",
		slog.String("request_id", string(id)),
		slog.String("action", string(action)),
		slog.String("status", string(req.Status)),
		slog.String("actor", actor.ID),
	)
	return req, nil
}

// Delete removes a request and, best effort, its attachments.
func (s *RequestService) Delete(ctx context.Context, id generic.RequestID) error {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return generic.Collaborator("get request", err)
	}
	if err := s.store.DeleteRequest(ctx, id); err != nil {
		return generic.Collaborator("delete request", err)
	}
	if s.attachments != nil {
		for _, ref := range req.Attachments {
			if err := s.attachments.Delete(ctx, ref); err != nil {
				s.logger.WarnContext(ctx, "attachment cleanup failed",
					slog.String("request_id", string(id)),
					slog.String("ref", ref),
					slog.Any("error", err),
				)
			}
		}
	}
	return nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachmentInput is a file to attach; Sequence is its 1-based position
// among the request's attachments.
type AttachmentInput struct {
	ApplyDate   generic.TimePoint
	Sequence    int
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAttachment stores a file for userID and returns its reference.
func (s *RequestService) UploadAttachment(ctx context.Context, userID generic.UserID, in AttachmentInput) (string, error) {
	if s.attachments == nil {
		return "", fmt.Errorf("%w: attachments are not configured", generic.ErrValidation)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return "", err
	}
	seq := in.Sequence
	if seq < 1 {
		seq = 1
	}
	return s.attachments.Upload(ctx, Upload{
		UserID:      user.ID,
		EmployeeID:  user.EmployeeID,
		ApplyDate:   in.ApplyDate,
		Sequence:    seq,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		Size:        in.Size,
		Body:        in.Body,
	})
}

// DeleteAttachment removes an uploaded file by reference.
func (s *RequestService) DeleteAttachment(ctx context.Context, ref string) error {
	if s.attachments == nil {
		return fmt.Errorf("%w: attachments are not configured", generic.ErrValidation)
	}
	return s.attachments.Delete(ctx, ref)
}

// =============================================================================
// QUERIES
// =============================================================================

// Quota returns userID's balance for category in year. excludeID removes the
// request being edited from the sums.
func (s *RequestService) Quota(ctx context.Context, userID generic.UserID, category Category, year int, excludeID generic.RequestID) (QuotaReport, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return QuotaReport{}, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return QuotaReport{}, generic.Collaborator("list requests", err)
	}
	return ComputeQuota(user, s.categories.Resolve(category), year, requests, excludeID), nil
}

// CheckOverlap returns the first request conflicting with span, or nil.
func (s *RequestService) CheckOverlap(ctx context.Context, userID generic.UserID, span generic.Span, excludeID generic.RequestID) (*Request, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, generic.Collaborator("list requests", err)
	}
	if conflict, ok := DetectOverlap(requests, userID, span, excludeID); ok {
		return &conflict, nil
	}
	return nil, nil
}

// Warnings evaluates every configured rule for userID.
func (s *RequestService) Warnings(ctx context.Context, userID generic.UserID) ([]ActiveWarning, error) {
	rules, err := s.store.ListWarningRules(ctx)
	if err != nil {
		return nil, generic.Collaborator("list warning rules", err)
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, generic.Collaborator("list requests", err)
	}
	return EvaluateWarnings(userID, rules, requests), nil
}

// AvailableCategories lists the categories userID may request.
func (s *RequestService) AvailableCategories(ctx context.Context, userID generic.UserID) ([]CategoryDef, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.categories.AvailableFor(user), nil
}

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	UserID   generic.UserID
	Status   Status
	Category Category
}

func (f RequestFilter) matches(r Request) bool {
	return (f.UserID == "" || r.UserID == f.UserID) &&
		(f.Status == "" || r.Status == f.Status) &&
		(f.Category == "" || r.Category == f.Category)
}

// ListRequests returns requests matching f in storage order.
func (s *RequestService) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, generic.Collaborator("list requests", err)
	}
	result := make([]Request, 0, len(requests))
	for _, r := range requests {
		if f.matches(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

// GetRequest returns one request.
func (s *RequestService) GetRequest(ctx context.Context, id generic.RequestID) (Request, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return Request{}, generic.Collaborator("get request", err)
	}
	return r, nil
}

func (s *RequestService) getUser(ctx context.Context, id generic.UserID) (User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, generic.ErrNotFound) {
			return User{}, err
		}
		return User{}, generic.Collaborator("get user", err)
	}
	return u, nil
}
