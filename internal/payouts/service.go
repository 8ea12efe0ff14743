package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/cache"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// EarningsSource supplies the earning side of every balance.
type EarningsSource interface {
	LedgerEarnings(ctx context.Context) ([]ledger.Earning, error)
	ConsultantPayees(ctx context.Context) ([]ledger.Payee, error)
	ConsultantPayee(ctx context.Context, id int64) (ledger.Payee, error)
}

// Locker serialises writes per payee.
type Locker interface {
	Acquire(ctx context.Context, key string) (*cache.Lock, error)
}

// Notifier queues remittance notices.
type Notifier interface {
	EnqueueRemittance(ctx context.Context, payload jobs.RemittancePayload) (string, error)
}

// MetricsRecorder receives payout counters.
type MetricsRecorder interface {
	PaymentRecorded(payeeType string)
	PaymentRejected(reason string)
}

// Options configures write-time policy.
type Options struct {
	AllowOverpayment bool
}

// Service records payments and derives balances.
type Service struct {
	repo      Repository
	earnings  EarningsSource
	locker    Locker
	notifier  Notifier
	metrics   MetricsRecorder
	validator *httpx.Validator
	logger    *slog.Logger
	opts      Options
}

// NewService constructs the payouts service. notifier and metrics may be nil.
func NewService(repo Repository, earnings EarningsSource, locker Locker, notifier Notifier, metrics MetricsRecorder, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		earnings:  earnings,
		locker:    locker,
		notifier:  notifier,
		metrics:   metrics,
		validator: httpx.NewValidator(),
		logger:    logger,
		opts:      opts,
	}
}

// ResolvePayee maps a payment_type and recipient_id to a payee.
func (s *Service) ResolvePayee(ctx context.Context, paymentType, recipientID string) (ledger.Payee, error) {
	switch ledger.PayeeType(paymentType) {
	case ledger.PayeeConsultant:
		id, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
		if err != nil || id <= 0 {
			return ledger.Payee{}, httpx.NewValidationError("recipient_id", "must be a consultant id")
		}
		return s.earnings.ConsultantPayee(ctx, id)
	case ledger.PayeeTeam:
		role := revenue.Role(strings.TrimSpace(recipientID))
		if !role.Valid() {
			return ledger.Payee{}, httpx.NewValidationError("recipient_id", "must be one of ceo it_specialist accountant other_team")
		}
		return ledger.TeamPayee(role), nil
	default:
		return ledger.Payee{}, httpx.NewValidationError("payment_type", "must be one of consultant team")
	}
}

// Balance recomputes a single payee's balance from current rows.
func (s *Service) Balance(ctx context.Context, payee ledger.Payee) (ledger.Balance, error) {
	var (
		earned   []ledger.Earning
		payments []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		earned, err = s.earnings.LedgerEarnings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, Filter{PaymentType: payee.Type, RecipientID: payee.RecipientID()})
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger.Balance{}, err
	}
	return ledger.ComputeBalance(payee, earned, toLedger(payments)), nil
}

// Record validates and stores a payment. The payee lock is held from the
// balance check until the row commits; it is re-checked before the write and
// the transaction is bounded by its expiry.
func (s *Service) Record(ctx context.Context, actor rbac.Principal, idempotencyKey string, in CreateInput) (Receipt, error) {
	if err := s.validator.Struct(in); err != nil {
		s.reject("validation")
		return Receipt{}, err
	}
	if err := revenue.ValidateMoney(in.Amount); err != nil {
		s.reject("validation")
		return Receipt{}, httpx.NewValidationError("amount", "must be whole cents no greater than "+revenue.MaxMoney.StringFixed(2))
	}
	start, end, err := parsePeriod(in.PeriodStart, in.PeriodEnd)
	if err != nil {
		s.reject("validation")
		return Receipt{}, err
	}
	payee, err := s.ResolvePayee(ctx, in.PaymentType, in.RecipientID)
	if err != nil {
		s.reject("payee")
		return Receipt{}, err
	}

	lock, err := s.locker.Acquire(ctx, shared.PayeeLockKey(string(payee.Type), payee.RecipientID()))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			s.reject("locked")
			return Receipt{}, ErrPayeeBusy
		}
		return Receipt{}, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release payee lock", slog.Any("error", err))
		}
	}()

	readCtx, cancelRead := context.WithDeadline(ctx, lock.Deadline())
	balance, err := s.Balance(readCtx, payee)
	cancelRead()
	if err != nil {
		return Receipt{}, s.lockExpired(ctx, err)
	}
	if !s.opts.AllowOverpayment && in.Amount.GreaterThan(balance.Unpaid.Add(OverpaymentSlack)) {
		s.reject("overpayment")
		return Receipt{}, fmt.Errorf("%w (unpaid %s, requested %s)", ErrOverpayment, revenue.Round2(balance.Unpaid).StringFixed(2), in.Amount.StringFixed(2))
	}

	name := strings.TrimSpace(in.RecipientName)
	if name == "" {
		name = payee.Name
	}
	email := strings.TrimSpace(in.RecipientEmail)
	if email == "" {
		email = payee.Email
	}
	reference := strings.TrimSpace(in.PaymentReference)
	if reference == "" {
		reference = "PAY-" + strings.ToUpper(uuid.NewString()[:8])
	}
	rec := Record{
		PaymentType:      payee.Type,
		RecipientID:      payee.RecipientID(),
		RecipientName:    name,
		RecipientEmail:   email,
		Amount:           in.Amount,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: reference,
		Notes:            in.Notes,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalAssignments: in.TotalAssignments,
		RecordedBy:       actor.ID,
	}

	// The balance read may have outlived the TTL; refuse to write unless the
	// lock is still ours, and abort the transaction when it would lapse.
	if err := lock.Extend(ctx); err != nil {
		if errors.Is(err, cache.ErrLockLost) {
			s.reject("locked")
			return Receipt{}, ErrPayeeBusy
		}
		return Receipt{}, err
	}
	txCtx, cancelTx := context.WithDeadline(ctx, lock.Deadline())
	defer cancelTx()
	err = s.repo.WithTx(txCtx, func(ctx context.Context, tx TxRepository) error {
		if idempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, idempotencyKey); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return ErrDuplicateSubmission
				}
				return err
			}
		}
		saved, err := tx.InsertPayment(ctx, rec)
		if err != nil {
			return err
		}
		rec = saved
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "payment.recorded",
			Entity:   "payment_records",
			EntityID: strconv.FormatInt(saved.ID, 10),
			Meta: map[string]any{
				"payment_type":    string(saved.PaymentType),
				"recipient_id":    saved.RecipientID,
				"amount":          saved.Amount.String(),
				"unpaid_before":   balance.Unpaid.String(),
				"idempotency_key": idempotencyKey,
			},
		})
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSubmission) {
			s.reject("duplicate")
		}
		return Receipt{}, s.lockExpired(ctx, err)
	}
	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(rec.PaymentType))
	}

	after := balance
	after.TotalPaid = balance.TotalPaid.Add(rec.Amount)
	after.Unpaid = after.TotalEarned.Sub(after.TotalPaid)
	after.Status = ledger.StatusFor(after.TotalPaid, after.Unpaid)

	s.notify(ctx, rec)
	return Receipt{Payment: rec, Balance: after}, nil
}

// lockExpired reports ErrPayeeBusy for work cut short by the lock deadline
// rather than by the caller.
func (s *Service) lockExpired(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		s.reject("locked")
		return ErrPayeeBusy
	}
	return err
}

func (s *Service) notify(ctx context.Context, rec Record) {
	if s.notifier == nil || rec.RecipientEmail == "" {
		return
	}
	payload := jobs.RemittancePayload{
		PaymentID:      rec.ID,
		PaymentType:    string(rec.PaymentType),
		RecipientName:  rec.RecipientName,
		RecipientEmail: rec.RecipientEmail,
		Amount:         rec.Amount.StringFixed(2),
		Method:         rec.PaymentMethod,
		Reference:      rec.PaymentReference,
		PaidAt:         rec.CreatedAt,
	}
	if rec.PeriodStart != nil {
		payload.PeriodStart = rec.PeriodStart.Format(time.DateOnly)
	}
	if rec.PeriodEnd != nil {
		payload.PeriodEnd = rec.PeriodEnd.Format(time.DateOnly)
	}
	if _, err := s.notifier.EnqueueRemittance(ctx, payload); err != nil {
		s.logger.Warn("enqueue remittance notice", slog.Int64("payment_id", rec.ID), slog.Any("error", err))
	}
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.PaymentRejected(reason)
	}
}

// History returns the payments made to one payee and its balance.
func (s *Service) History(ctx context.Context, paymentType, recipientID string) (History, error) {
	payee, err := s.ResolvePayee(ctx, paymentType, recipientID)
	if err != nil {
		return History{}, err
	}
	var (
		earned   []ledger.Earning
		payments []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		earned, err = s.earnings.LedgerEarnings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, Filter{PaymentType: payee.Type, RecipientID: payee.RecipientID()})
		return err
	})
	if err := g.Wait(); err != nil {
		return History{}, err
	}
	if payments == nil {
		payments = []Record{}
	}
	return History{
		Balance:  ledger.ComputeBalance(payee, earned, toLedger(payments)),
		Payments: payments,
	}, nil
}

// Status computes the balance of every consultant and team role.
func (s *Service) Status(ctx context.Context) (ledger.Snapshot, error) {
	var (
		earned   []ledger.Earning
		payees   []ledger.Payee
		payments []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		earned, err = s.earnings.LedgerEarnings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payees, err = s.earnings.ConsultantPayees(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger.Snapshot{}, err
	}
	lp := toLedger(payments)
	return ledger.Snapshot{
		Consultants: ledger.BalancesForConsultants(payees, earned, lp),
		Team:        ledger.BalancesForTeam(earned, lp),
	}, nil
}

// Feed merges transactions and payment records.
func (s *Service) Feed(ctx context.Context) (Feed, error) {
	var (
		inflows  []Inflow
		payments []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inflows, err = s.repo.ListInflows(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return Feed{}, err
	}
	return BuildFeed(inflows, payments), nil
}

func toLedger(records []Record) []ledger.Payment {
	out := make([]ledger.Payment, 0, len(records))
	for _, r := range records {
		out = append(out, r.LedgerPayment())
	}
	return out
}

func parsePeriod(rawStart, rawEnd string) (*time.Time, *time.Time, error) {
	parse := func(field, raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, httpx.NewValidationError(field, "must be a date formatted YYYY-MM-DD")
		}
		return &t, nil
	}
	start, err := parse("period_start", rawStart)
	if err != nil {
		return nil, nil, err
	}
	end, err := parse("period_end", rawEnd)
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, httpx.NewValidationError("period_end", "must not be before period_start")
	}
	return start, end, nil
}
