package recharge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelstore/recharge-service/internal/gateway"
	"github.com/pixelstore/recharge-service/internal/metrics"
	"github.com/pixelstore/recharge-service/internal/model"
	"github.com/pixelstore/recharge-service/internal/repo"
)

// Item description the provider shows on the payer's bank statement.
const rechargeDescription = "Recarga de Saldo"

// After this many consecutive transient poll failures the log level is
// escalated. Polling itself continues; the expiry countdown is the bound.
const transientWarnAfter = 10

var (
	// ErrLedger wraps a balance credit that failed after the gateway
	// confirmed payment. Never swallowed; needs manual reconciliation.
	ErrLedger = errors.New("balance credit failed after approval")
	// ErrAttemptNotFound means the handle does not match a known attempt.
	ErrAttemptNotFound = errors.New("recharge attempt not found")
)

// ValidationError rejects a request before any network call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid recharge request: " + e.Reason }

// Config bounds a recharge attempt. Zero fields get the documented defaults
// (min=30.00, max=10000.00, expiry=15m, poll=1s).
type Config struct {
	MinAmount    decimal.Decimal
	MaxAmount    decimal.Decimal
	Expiry       time.Duration
	PollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinAmount.IsZero() {
		c.MinAmount = decimal.NewFromInt(30)
	}
	if c.MaxAmount.IsZero() {
		c.MaxAmount = decimal.NewFromInt(10000)
	}
	if c.Expiry == 0 {
		c.Expiry = 15 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
}

// Manager owns all active recharge attempts. Each attempt runs one polling
// goroutine from creation to a terminal state; the guarded store transition
// keeps crediting exactly-once no matter how many observers see an approval.
type Manager struct {
	cfg  Config
	gw   gateway.Gateway
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	attempts map[string]*Attempt
	byTx     map[string]*Attempt
}

// NewManager constructs the orchestrator.
func NewManager(cfg Config, gw gateway.Gateway, r repo.RepositoryInterface, log *zap.SugaredLogger) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		gw:         gw,
		repo:       r,
		log:        log,
		baseCtx:    ctx,
		baseCancel: cancel,
		attempts:   make(map[string]*Attempt),
		byTx:       make(map[string]*Attempt),
	}
}

// Attempt is one live recharge flow: a handle the presentation host keeps
// while the payment is pending. Attempts are single-use; starting over
// always creates a fresh attempt and a fresh payment record.
type Attempt struct {
	ID            string
	UserID        uint64
	TransactionID string
	Amount        decimal.Decimal
	Bonus         decimal.Decimal
	PixCode       string
	QRCode        string
	ExpiresAt     time.Time

	cancelRun context.CancelFunc
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	state     State
	pollCount int
	listeners []func(Snapshot)
}

// State returns the current lifecycle state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed when the polling goroutine has exited.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// OnStateChange registers a view-state listener. It fires on every poll tick
// and on every transition, with the same snapshot Snapshot() would return.
func (a *Attempt) OnStateChange(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Snapshot renders the attempt for the presentation host.
func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Attempt) snapshotLocked() Snapshot {
	left := 0
	if a.state == StatePending {
		left = secondsUntil(a.ExpiresAt)
	}
	return Snapshot{
		AttemptID:     a.ID,
		TransactionID: a.TransactionID,
		Status:        a.state,
		Amount:        a.Amount,
		Bonus:         a.Bonus,
		Total:         a.Amount.Add(a.Bonus),
		TimeLeft:      left,
		Countdown:     FormatCountdown(left),
		PixCode:       a.PixCode,
		QRCode:        a.QRCode,
		PollCount:     a.pollCount,
	}
}

func (a *Attempt) setState(s State) {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.notifyLocked()
	a.mu.Unlock()
}

func (a *Attempt) bumpPoll() {
	a.mu.Lock()
	a.pollCount++
	a.notifyLocked()
	a.mu.Unlock()
}

func (a *Attempt) notifyLocked() {
	snap := a.snapshotLocked()
	listeners := make([]func(Snapshot), len(a.listeners))
	copy(listeners, a.listeners)
	go func() {
		for _, fn := range listeners {
			fn(snap)
		}
	}()
}

// halt stops the polling goroutine without store side effects. Used when the
// record was settled by another path (webhook, cancel, shutdown).
func (a *Attempt) halt() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Start drives IDLE -> CREATING -> PENDING: validates the amount, creates
// the upstream transaction, persists the PENDING record, then begins
// polling. If the gateway accepted the transaction but the local insert
// fails, the error is surfaced as retryable and polling never starts.
func (m *Manager) Start(ctx context.Context, userID uint64, amount decimal.Decimal, noBonus bool) (*Attempt, error) {
	if amount.LessThan(m.cfg.MinAmount) || amount.GreaterThan(m.cfg.MaxAmount) {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"amount %s outside [%s, %s]", amount, m.cfg.MinAmount, m.cfg.MaxAmount)}
	}

	created, err := m.gw.CreateTransaction(ctx, amount, rechargeDescription)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("create").Inc()
		return nil, fmt.Errorf("create pix transaction: %w", err)
	}

	now := time.Now()
	bonus := Bonus(amount, noBonus)
	rec := &model.PixPayment{
		UserID:        userID,
		TransactionID: created.TransactionID,
		Amount:        amount,
		BonusAmount:   bonus,
		Status:        model.StatusPending,
		ExpiresAt:     now.Add(m.cfg.Expiry),
	}
	if created.PixCode != "" {
		rec.PixCode = &created.PixCode
	}
	if created.QRCode != "" {
		rec.QRCode = &created.QRCode
	}

	err = m.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.repo.InsertPayment(ctx, tx, rec); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": rec.TransactionID,
			"user_id":        userID,
			"amount":         amount,
			"bonus":          bonus,
			"expires_at":     rec.ExpiresAt,
		})
		return m.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
			Aggregate:   "PixPayment",
			AggregateID: rec.TransactionID,
			EventType:   "recharge.created",
			Payload:     string(payload),
		})
	})
	if err != nil {
		// The upstream transaction exists but we cannot track it. It will
		// simply expire unpaid at the provider; the user retries.
		return nil, fmt.Errorf("persist payment %s: %w", created.TransactionID, err)
	}

	runCtx, cancel := context.WithCancel(m.baseCtx)
	a := &Attempt{
		ID:            uuid.NewString(),
		UserID:        userID,
		TransactionID: created.TransactionID,
		Amount:        amount,
		Bonus:         bonus,
		PixCode:       created.PixCode,
		QRCode:        created.QRCode,
		ExpiresAt:     rec.ExpiresAt,
		cancelRun:     cancel,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		state:         StatePending,
	}

	m.mu.Lock()
	m.attempts[a.ID] = a
	m.byTx[a.TransactionID] = a
	m.mu.Unlock()

	metrics.RechargesCreated.Inc()
	m.wg.Add(1)
	go m.run(runCtx, a)
	m.log.Infof("recharge started attempt=%s tx=%s user=%d amount=%s bonus=%s",
		a.ID, a.TransactionID, userID, amount, bonus)
	return a, nil
}

// Get returns a live or recently finished attempt by handle id.
func (m *Manager) Get(attemptID string) (*Attempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	return a, ok
}

func (m *Manager) getByTx(transactionID string) *Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byTx[transactionID]
}

func (m *Manager) forget(a *Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, a.ID)
	delete(m.byTx, a.TransactionID)
}

// Cancel stops polling for an attempt and marks the record CANCELLED under
// the status guard. An approval that already landed is never undone: the
// guard loses and the credit stands.
func (m *Manager) Cancel(ctx context.Context, attemptID string) error {
	a, ok := m.Get(attemptID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, attemptID)
	}
	m.finalize(ctx, a, model.StatusCancelled, StateCancelled, "recharge.cancelled")
	a.cancelRun()
	a.halt()
	return nil
}

// NotifyApproved is the push path beside polling: a gateway webhook or the
// persistence change feed reporting an approval. The claim is verified
// upstream before it funnels into the same guarded settlement as polling.
func (m *Manager) NotifyApproved(ctx context.Context, transactionID string) error {
	res, err := m.gw.CheckStatus(ctx, transactionID)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("check").Inc()
		return fmt.Errorf("verify %s: %w", transactionID, err)
	}
	if res.Status != model.StatusApproved {
		return fmt.Errorf("transaction %s not approved upstream (%s)", transactionID, res.Raw)
	}
	rec, err := m.repo.FindPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}
	a := m.getByTx(transactionID)
	if done := m.settleApproval(ctx, a, rec.UserID, transactionID, rec.Amount, rec.BonusAmount); !done {
		return fmt.Errorf("settle %s: retryable store failure", transactionID)
	}
	if a != nil {
		a.halt()
	}
	return nil
}

// Shutdown cancels every polling goroutine and waits for them to exit.
// Pending records are left PENDING; the webhook path or the provider's own
// expiry reconciles them later.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()
	ch := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, a *Attempt) {
	defer m.wg.Done()
	defer close(a.done)
	// keep the finished attempt readable for one expiry window, then drop it
	defer time.AfterFunc(m.cfg.Expiry, func() { m.forget(a) })

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(time.Until(a.ExpiresAt))
	defer deadline.Stop()

	consecutive := 0
	// the storefront checks immediately, then on the interval
	if m.pollOnce(ctx, a, &consecutive) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-deadline.C:
			m.expire(ctx, a)
			return
		case <-ticker.C:
			if m.pollOnce(ctx, a, &consecutive) {
				return
			}
		}
	}
}

// pollOnce performs one status check. Returns true when the attempt reached
// a terminal state and polling must stop.
func (m *Manager) pollOnce(ctx context.Context, a *Attempt, consecutive *int) bool {
	a.bumpPoll()
	res, err := m.gw.CheckStatus(ctx, a.TransactionID)
	if ctx.Err() != nil {
		// cancelled while the call was in flight; discard the result
		return true
	}
	if err != nil {
		*consecutive++
		metrics.GatewayErrors.WithLabelValues("check").Inc()
		if errors.Is(err, gateway.ErrTransient) && *consecutive < transientWarnAfter {
			m.log.Debugf("status check tx=%s: %v", a.TransactionID, err)
		} else {
			m.log.Warnf("status check tx=%s (%d consecutive failures): %v", a.TransactionID, *consecutive, err)
		}
		return false
	}
	*consecutive = 0

	switch res.Status {
	case model.StatusApproved:
		return m.settleApproval(ctx, a, a.UserID, a.TransactionID, a.Amount, a.Bonus)
	case model.StatusCancelled:
		m.finalize(ctx, a, model.StatusCancelled, StateCancelled, "recharge.cancelled")
		return true
	case model.StatusExpired:
		m.finalize(ctx, a, model.StatusExpired, StateExpired, "recharge.expired")
		return true
	default:
		return false
	}
}

// expire handles the countdown reaching zero: one final re-check first, so
// an approval that landed right at the deadline is not lost.
func (m *Manager) expire(ctx context.Context, a *Attempt) {
	res, err := m.gw.CheckStatus(ctx, a.TransactionID)
	if err == nil && res.Status == model.StatusApproved {
		m.settleApproval(ctx, a, a.UserID, a.TransactionID, a.Amount, a.Bonus)
		return
	}
	m.finalize(ctx, a, model.StatusExpired, StateExpired, "recharge.expired")
}

// settleApproval performs the one logical unit of PENDING -> APPROVED:
// guarded status transition, balance credit of the base amount, audit row
// and outbox event, all in a single database transaction. Returns false only
// for retryable store failures (the record stays PENDING and the next tick
// tries again).
func (m *Manager) settleApproval(ctx context.Context, a *Attempt, userID uint64, transactionID string, amount, bonus decimal.Decimal) bool {
	newBal, err := m.credit(ctx, userID, transactionID, amount, bonus)
	switch {
	case err == nil:
		metrics.RechargesSettled.WithLabelValues("approved").Inc()
		m.log.Infof("recharge approved tx=%s user=%d amount=%s balance=%s", transactionID, userID, amount, newBal)
		if a != nil {
			a.setState(StateApproved)
		}
		return true

	case errors.Is(err, repo.ErrAlreadyTerminal):
		m.adoptTerminal(ctx, a, transactionID, true)
		return true

	case errors.Is(err, ErrLedger):
		// payment confirmed, balance not credited: never silently dropped
		metrics.CreditFailures.Inc()
		m.log.Errorf("LEDGER FAILURE tx=%s user=%d amount=%s: payment confirmed but balance credit failed, manual reconciliation required: %v",
			transactionID, userID, amount, err)
		if a != nil {
			a.setState(StateCreditFailed)
		}
		return true

	default:
		m.log.Warnf("settle tx=%s: %v", transactionID, err)
		return false
	}
}

func (m *Manager) credit(ctx context.Context, userID uint64, transactionID string, amount, bonus decimal.Decimal) (decimal.Decimal, error) {
	now := time.Now()
	var newBal decimal.Decimal
	err := m.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.repo.UpdatePaymentStatus(ctx, tx, transactionID, model.StatusPending, model.StatusApproved, now); err != nil {
			return err
		}
		bal, err := m.repo.CreditBalance(ctx, tx, userID, amount)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				return fmt.Errorf("%w: %w", ErrLedger, err)
			}
			return err
		}
		newBal = bal
		key := transactionID
		if err := m.repo.CreateTransaction(ctx, tx, &model.Transaction{
			UserID:         userID,
			Type:           "RECHARGE",
			Amount:         amount,
			BalanceBefore:  bal.Sub(amount),
			BalanceAfter:   bal,
			IdempotencyKey: &key,
		}); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": transactionID,
			"user_id":        userID,
			"amount":         amount,
			"bonus":          bonus,
			"balance":        bal,
		})
		return m.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
			Aggregate:   "PixPayment",
			AggregateID: transactionID,
			EventType:   "recharge.approved",
			Payload:     string(payload),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	if cerr := m.repo.CacheBalance(ctx, userID, newBal); cerr != nil {
		m.log.Warnf("cache balance user=%d: %v", userID, cerr)
	}
	return newBal, nil
}

// finalize moves PENDING to a non-credit terminal status under the guard.
// Losing the guard to an approval is fine: the credit stands and the attempt
// adopts the record's actual state.
func (m *Manager) finalize(ctx context.Context, a *Attempt, status model.Status, state State, eventType string) {
	now := time.Now()
	err := m.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.repo.UpdatePaymentStatus(ctx, tx, a.TransactionID, model.StatusPending, status, now); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": a.TransactionID,
			"user_id":        a.UserID,
			"amount":         a.Amount,
		})
		return m.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
			Aggregate:   "PixPayment",
			AggregateID: a.TransactionID,
			EventType:   eventType,
			Payload:     string(payload),
		})
	})
	switch {
	case err == nil:
		metrics.RechargesSettled.WithLabelValues(string(status)).Inc()
		m.log.Infof("recharge %s tx=%s user=%d", status, a.TransactionID, a.UserID)
		a.setState(state)
	case errors.Is(err, repo.ErrAlreadyTerminal):
		m.adoptTerminal(ctx, a, a.TransactionID, false)
	case errors.Is(err, repo.ErrPaymentNotFound):
		m.log.Errorf("finalize tx=%s: %v", a.TransactionID, err)
		a.setState(state)
	default:
		m.log.Warnf("finalize tx=%s as %s: %v", a.TransactionID, status, err)
		a.setState(state)
	}
}

// adoptTerminal aligns the attempt with a record that some other observer
// already moved to a terminal status. When the caller was acting on an
// approval and the record turns out EXPIRED or CANCELLED, that is a late
// approval: logged for manual reconciliation and never credited.
func (m *Manager) adoptTerminal(ctx context.Context, a *Attempt, transactionID string, fromApproval bool) {
	rec, err := m.repo.FindPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		m.log.Errorf("adopt terminal tx=%s: %v", transactionID, err)
		return
	}
	var state State
	switch rec.Status {
	case model.StatusApproved:
		state = StateApproved
	case model.StatusExpired:
		state = StateExpired
	case model.StatusCancelled:
		state = StateCancelled
	default:
		return
	}
	if fromApproval && rec.Status != model.StatusApproved {
		m.log.Errorf("late approval for %s tx=%s user=%d amount=%s: not credited, manual reconciliation required",
			rec.Status, transactionID, rec.UserID, rec.Amount)
	}
	if a != nil {
		a.setState(state)
	}
}
