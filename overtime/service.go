/*
service.go - Settlement orchestration

PURPOSE:
  Runs settlement actions and detail reviews end to end:

    1. Read records, requests and users through one store handle
    2. Compute the outcome with the pure Ledger
    3. Upsert records (and corrected requests) in one transaction
    4. Derive and write overtime snapshots for the touched users

  Steps 1-3 run inside generic.RunInTx, so a store with transactions sees a
  consistent read and an all-or-nothing write. The records written include
  every later month of a touched user, recomputed from the rewritten one. Step 4 runs after commit from
  the merged in-memory records; its failure is reported as *SyncError and
  the records stay written.

SEE ALSO:
  - ledger.go, review.go: What gets written
  - sync.go: Snapshot derivation
  - scheduler.go: Periodic full resync
*/
package overtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type Service struct {
	store  Store
	ledger *Ledger
	sync   *Synchronizer
	logger *slog.Logger
}

func NewService(store Store, ledger *Ledger, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: ledger, sync: NewSynchronizer(store), logger: logger}
}

func (s *Service) Ledger() *Ledger { return s.ledger }

// Result is what an action wrote.
type Result struct {
	Records   []Record               `json:"records"`
	Requests  []leave.Request        `json:"requests,omitempty"`
	Warnings  []*BaseOutOfRangeError `json:"warnings,omitempty"`
	Snapshots []Snapshot             `json:"-"`
}

func readState(ctx context.Context, st Store) (State, error) {
	records, err := st.ListSettlements(ctx)
	if err != nil {
		return State{}, generic.Collaborator("list settlements", err)
	}
	requests, err := st.ListRequests(ctx)
	if err != nil {
		return State{}, generic.Collaborator("list requests", err)
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		return State{}, generic.Collaborator("list users", err)
	}
	return State{Records: records, Requests: requests, Users: users}, nil
}

// ApplySettlement runs a settlement action.
func (s *Service) ApplySettlement(ctx context.Context, a Action) (Result, error) {
	var (
		out    Outcome
		merged []Record
	)
	err := generic.RunInTx(ctx, s.store, func(tx Store) error {
		st, err := readState(ctx, tx)
		if err != nil {
			return err
		}
		out, err = s.ledger.Apply(a, st)
		if err != nil {
			return err
		}
		if err := tx.UpsertSettlements(ctx, out.Records); err != nil {
			return generic.Collaborator("upsert settlements", err)
		}
		merged = merge(st.Records, out.Records)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: out.Records, Warnings: out.Warnings}
	s.logWarnings(ctx, out.Warnings)
	s.logger.InfoContext(ctx, "settlement applied",
		slog.String("action", string(a.Kind)),
		slog.String("month", a.Month.String()),
		slog.Int("records", len(out.Records)),
		slog.String("signer", a.Signer.Name),
	)

	res.Snapshots, err = s.sync.Sync(ctx, merged, out.Touched)
	if err != nil {
		s.logger.ErrorContext(ctx, "overtime snapshot sync failed", slog.Any("error", err))
		return res, err
	}
	return res, nil
}

// ApplyDetailReview runs a detail review.
func (s *Service) ApplyDetailReview(ctx context.Context, rv Review) (Result, error) {
	var (
		out    ReviewOutcome
		merged []Record
	)
	err := generic.RunInTx(ctx, s.store, func(tx Store) error {
		st, err := readState(ctx, tx)
		if err != nil {
			return err
		}
		out, err = s.ledger.Review(rv, st)
		if err != nil {
			return err
		}
		for _, r := range out.Requests {
			if err := tx.UpdateRequest(ctx, r); err != nil {
				return generic.Collaborator("update request", err)
			}
		}
		if err := tx.UpsertSettlements(ctx, out.Records); err != nil {
			return generic.Collaborator("upsert settlements", err)
		}
		merged = merge(st.Records, out.Records)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: out.Records, Requests: out.Requests, Warnings: out.Warnings}
	s.logWarnings(ctx, out.Warnings)
	s.logger.InfoContext(ctx, "detail review applied",
		slog.String("month", rv.Month.String()),
		slog.Int("records", len(out.Records)),
		slog.Int("requests", len(out.Requests)),
		slog.String("signer", rv.Signer.Name),
	)

	res.Snapshots, err = s.sync.Sync(ctx, merged, out.Touched)
	if err != nil {
		s.logger.ErrorContext(ctx, "overtime snapshot sync failed", slog.Any("error", err))
		return res, err
	}
	return res, nil
}

func (s *Service) logWarnings(ctx context.Context, warnings []*BaseOutOfRangeError) {
	for _, w := range warnings {
		s.logger.WarnContext(ctx, "settlement base out of range",
			slog.String("user_id", string(w.UserID)),
			slog.String("month", w.Month.String()),
			slog.String("base", w.Base.String()),
			slog.String("applied", w.Applied.String()),
		)
	}
}

// Resync recomputes the whole settlement chain, writes back any record whose
// derived figures drifted, then rewrites the overtime snapshot of every user.
func (s *Service) Resync(ctx context.Context) ([]Snapshot, error) {
	var (
		st      State
		drifted []Record
	)
	err := generic.RunInTx(ctx, s.store, func(tx Store) error {
		var err error
		if st, err = readState(ctx, tx); err != nil {
			return err
		}
		drifted = Recalculate(st)
		if len(drifted) == 0 {
			return nil
		}
		if err := tx.UpsertSettlements(ctx, drifted); err != nil {
			return generic.Collaborator("upsert settlements", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifted) > 0 {
		s.logger.InfoContext(ctx, "settlement chain recalculated", slog.Int("records", len(drifted)))
	}
	return s.sync.Sync(ctx, merge(st.Records, drifted), userIDs(st.Users))
}

// =============================================================================
// QUERIES
// =============================================================================

// ListRecords returns the records of month, or every record when month is
// the zero value.
func (s *Service) ListRecords(ctx context.Context, month generic.YearMonth) ([]Record, error) {
	records, err := s.store.ListSettlements(ctx)
	if err != nil {
		return nil, generic.Collaborator("list settlements", err)
	}
	if month == (generic.YearMonth{}) {
		return records, nil
	}
	var out []Record
	for _, r := range records {
		if r.Month == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// LiveBalance returns the balance userID carries into month.
func (s *Service) LiveBalance(ctx context.Context, userID generic.UserID, month generic.YearMonth) (decimal.Decimal, error) {
	if err := month.Validate(); err != nil {
		return decimal.Zero, err
	}
	records, err := s.store.ListSettlements(ctx)
	if err != nil {
		return decimal.Zero, generic.Collaborator("list settlements", err)
	}
	return LiveBalance(records, userID, month), nil
}

// ReviewRows lists the requests a detail review of month would cover.
func (s *Service) ReviewRows(ctx context.Context, month generic.YearMonth) ([]ReviewRow, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, generic.Collaborator("list requests", err)
	}
	return ReviewRows(requests, month), nil
}

// PreviewRow is one user's settlement worksheet line for a month.
type PreviewRow struct {
	UserID       generic.UserID  `json:"userId"`
	Name         string          `json:"name"`
	Applied      decimal.Decimal `json:"appliedHours"`
	Compensatory decimal.Decimal `json:"compensatoryHours"`
	Live         decimal.Decimal `json:"liveBalance"`
	Base         decimal.Decimal `json:"actualHours"`
	Paid         decimal.Decimal `json:"paidHours"`
	Remaining    decimal.Decimal `json:"remainingHours"`
	BaseValid    bool            `json:"baseValid"`
	Record       *Record         `json:"record,omitempty"`
}

// Preview builds the worksheet for month without writing anything.
func (s *Service) Preview(ctx context.Context, month generic.YearMonth) ([]PreviewRow, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}
	st, err := readState(ctx, s.store)
	if err != nil {
		return nil, err
	}
	existing := index(st.Records)
	rows := make([]PreviewRow, 0, len(st.Users))
	for _, u := range st.Users {
		row := PreviewRow{
			UserID:       u.ID,
			Name:         u.Name,
			Applied:      AppliedHours(st.Requests, u.ID, month),
			Compensatory: CompensatoryHours(st.Requests, u.ID, month),
			Live:         LiveBalance(st.Records, u.ID, month),
		}
		if rec, ok := existing[Key{UserID: u.ID, Month: month}]; ok {
			rec := rec
			row.Record = &rec
			row.Base = rec.ActualHours
			row.Paid = rec.PaidHours
		}
		row.Remaining = row.Live.Add(row.Base).Sub(row.Paid).Sub(row.Compensatory)
		row.BaseValid = !row.Base.IsNegative() && !row.Base.GreaterThan(row.Applied)
		rows = append(rows, row)
	}
	return rows, nil
}

// IsSyncError reports whether err came from the snapshot step after a
// successful write.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
