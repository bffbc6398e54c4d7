// Package memory provides an in-memory store implementing every persistence
// interface of the leave and overtime packages. It is used by tests and by
// the server when started with -db="".
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	data

	// SnapshotErr, when set, is returned by ApplyOvertimeSnapshots without
	// writing anything.
	SnapshotErr error
}

type data struct {
	users       map[generic.UserID]leave.User
	requests    map[generic.RequestID]leave.Request
	order       []generic.RequestID
	settlements map[overtime.Key]overtime.Record
	groups      []leave.WorkflowGroup
	rules       []leave.WarningRule
	categories  []leave.CategoryDef
}

func New() *Memory {
	return &Memory{data: data{
		users:       make(map[generic.UserID]leave.User),
		requests:    make(map[generic.RequestID]leave.Request),
		settlements: make(map[overtime.Key]overtime.Record),
	}}
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) ListRequests(ctx context.Context) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequests(), nil
}

func (d *data) listRequests() []leave.Request {
	out := make([]leave.Request, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.requests[id].Clone())
	}
	return out
}

func (m *Memory) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequest(id)
}

func (d *data) getRequest(id generic.RequestID) (leave.Request, error) {
	r, ok := d.requests[id]
	if !ok {
		return leave.Request{}, &generic.NotFoundError{Kind: "request", ID: string(id)}
	}
	return r.Clone(), nil
}

func (m *Memory) CreateRequest(ctx context.Context, r leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequest(r)
}

func (d *data) createRequest(r leave.Request) error {
	if _, ok := d.requests[r.ID]; !ok {
		d.order = append(d.order, r.ID)
	}
	d.requests[r.ID] = r.Clone()
	return nil
}

func (m *Memory) UpdateRequest(ctx context.Context, r leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequest(r)
}

func (d *data) updateRequest(r leave.Request) error {
	if _, ok := d.requests[r.ID]; !ok {
		return &generic.NotFoundError{Kind: "request", ID: string(r.ID)}
	}
	d.requests[r.ID] = r.Clone()
	return nil
}

func (m *Memory) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRequest(id)
}

func (d *data) deleteRequest(id generic.RequestID) error {
	if _, ok := d.requests[id]; !ok {
		return &generic.NotFoundError{Kind: "request", ID: string(id)}
	}
	delete(d.requests, id)
	for i, o := range d.order {
		if o == id {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) ListUsers(ctx context.Context) ([]leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsers(), nil
}

func (d *data) listUsers() []leave.User {
	out := make([]leave.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) GetUser(ctx context.Context, id generic.UserID) (leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return leave.User{}, &generic.NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, nil
}

// SaveUser stores u, keeping the stored overtime snapshot.
func (m *Memory) SaveUser(ctx context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveUser(u)
	return nil
}

func (d *data) saveUser(u leave.User) {
	u.Quota.Overtime = d.users[u.ID].Quota.Overtime
	annual := make(map[int]decimal.Decimal, len(u.Quota.Annual))
	for y, v := range u.Quota.Annual {
		annual[y] = v
	}
	u.Quota.Annual = annual
	d.users[u.ID] = u
}

func (m *Memory) ApplyOvertimeSnapshots(ctx context.Context, snaps []overtime.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return m.SnapshotErr
	}
	return m.applySnapshots(snaps)
}

func (d *data) applySnapshots(snaps []overtime.Snapshot) error {
	for _, s := range snaps {
		u, ok := d.users[s.UserID()]
		if !ok {
			continue
		}
		u.Quota.Overtime = s.Days()
		d.users[u.ID] = u
	}
	return nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (m *Memory) ListSettlements(ctx context.Context) ([]overtime.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSettlements(), nil
}

func (d *data) listSettlements() []overtime.Record {
	out := make([]overtime.Record, 0, len(d.settlements))
	for _, r := range d.settlements {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[j].Month.After(out[i].Month)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *Memory) UpsertSettlements(ctx context.Context, records []overtime.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertSettlements(records)
}

func (d *data) upsertSettlements(records []overtime.Record) error {
	for _, r := range records {
		if prev, ok := d.settlements[r.Key()]; ok {
			r.ID = prev.ID
		}
		d.settlements[r.Key()] = r.Clone()
	}
	return nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (m *Memory) SaveWorkflowGroup(ctx context.Context, g leave.WorkflowGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.groups {
		if existing.ID == g.ID {
			m.groups[i] = g
			return nil
		}
	}
	m.groups = append(m.groups, g)
	return nil
}

func (m *Memory) ListWorkflowGroups(ctx context.Context) ([]leave.WorkflowGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]leave.WorkflowGroup(nil), m.groups...), nil
}

func (m *Memory) GroupForUser(ctx context.Context, userID generic.UserID) (leave.WorkflowGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return leave.WorkflowGroup{}, &generic.NotFoundError{Kind: "user", ID: string(userID)}
	}
	g, ok := leave.SelectGroup(m.groups, u)
	if !ok {
		return leave.WorkflowGroup{}, &generic.NotFoundError{Kind: "workflow group", ID: u.WorkflowGroupID}
	}
	return g, nil
}

func (m *Memory) SaveWarningRule(ctx context.Context, r leave.WarningRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rules {
		if existing.ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *Memory) ListWarningRules(ctx context.Context) ([]leave.WarningRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]leave.WarningRule(nil), m.rules...), nil
}

func (m *Memory) SaveCategory(ctx context.Context, c leave.CategoryDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.categories {
		if existing.Code == c.Code {
			m.categories[i] = c
			return nil
		}
	}
	m.categories = append(m.categories, c)
	return nil
}

func (m *Memory) ListCategories(ctx context.Context) ([]leave.CategoryDef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]leave.CategoryDef(nil), m.categories...), nil
}

// Reset removes all data.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = New().data
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn with exclusive access. Writes are applied directly and
// rolled back from a snapshot if fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(overtime.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	view := &txView{parent: m}
	if err := fn(view); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *data) clone() data {
	out := data{
		users:       make(map[generic.UserID]leave.User, len(d.users)),
		requests:    make(map[generic.RequestID]leave.Request, len(d.requests)),
		order:       append([]generic.RequestID(nil), d.order...),
		settlements: make(map[overtime.Key]overtime.Record, len(d.settlements)),
		groups:      append([]leave.WorkflowGroup(nil), d.groups...),
		rules:       append([]leave.WarningRule(nil), d.rules...),
		categories:  append([]leave.CategoryDef(nil), d.categories...),
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.requests {
		out.requests[k] = v.Clone()
	}
	for k, v := range d.settlements {
		out.settlements[k] = v.Clone()
	}
	return out
}

// txView is the store handed to WithTx callbacks. The parent lock is
// already held.
type txView struct {
	parent *Memory
}

func (v *txView) ListRequests(ctx context.Context) ([]leave.Request, error) {
	return v.parent.listRequests(), nil
}

func (v *txView) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	return v.parent.getRequest(id)
}

func (v *txView) CreateRequest(ctx context.Context, r leave.Request) error {
	return v.parent.createRequest(r)
}

func (v *txView) UpdateRequest(ctx context.Context, r leave.Request) error {
	return v.parent.updateRequest(r)
}

func (v *txView) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	return v.parent.deleteRequest(id)
}

func (v *txView) ListUsers(ctx context.Context) ([]leave.User, error) {
	return v.parent.listUsers(), nil
}

func (v *txView) GetUser(ctx context.Context, id generic.UserID) (leave.User, error) {
	u, ok := v.parent.users[id]
	if !ok {
		return leave.User{}, &generic.NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, nil
}

func (v *txView) SaveUser(ctx context.Context, u leave.User) error {
	v.parent.saveUser(u)
	return nil
}

func (v *txView) ListSettlements(ctx context.Context) ([]overtime.Record, error) {
	return v.parent.listSettlements(), nil
}

func (v *txView) UpsertSettlements(ctx context.Context, records []overtime.Record) error {
	return v.parent.upsertSettlements(records)
}

func (v *txView) ApplyOvertimeSnapshots(ctx context.Context, snaps []overtime.Snapshot) error {
	if v.parent.SnapshotErr != nil {
		return v.parent.SnapshotErr
	}
	return v.parent.applySnapshots(snaps)
}
