package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelstore/recharge-service/internal/model"
)

var (
	// ErrDuplicateTransaction is returned when a payment with the same
	// gateway transaction id already exists.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
	// ErrPaymentNotFound means no record matches the transaction id.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrAlreadyTerminal means the record reached a terminal status before
	// the requested transition. Racing observers treat this as a no-op.
	ErrAlreadyTerminal = errors.New("payment already in terminal status")
	// ErrInvalidTransition means the guarded update lost to a concurrent
	// writer but the record is not terminal.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUserNotFound means the credit target does not resolve.
	ErrUserNotFound = errors.New("user not found")
)

// RepositoryInterface restricts Repo methods for unit-test mocks.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	InsertPayment(ctx context.Context, tx *gorm.DB, p *model.PixPayment) error
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*model.PixPayment, error)
	UpdatePaymentStatus(ctx context.Context, tx *gorm.DB, transactionID string, from, to model.Status, at time.Time) error
	CreditBalance(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// InsertPayment creates the record for a freshly created gateway transaction.
func (r *Repository) InsertPayment(ctx context.Context, tx *gorm.DB, p *model.PixPayment) error {
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, p.TransactionID)
		}
		return err
	}
	return nil
}

// FindPaymentByTransactionID looks up by the gateway's id.
func (r *Repository) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*model.PixPayment, error) {
	var p model.PixPayment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePaymentStatus performs the guarded transition: the write only lands
// if the record is still in `from`. A lost guard is classified by re-reading
// the current status, so two racers can never both move the record.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, tx *gorm.DB, transactionID string, from, to model.Status, at time.Time) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == model.StatusApproved {
		updates["paid_at"] = at
	}
	res := tx.WithContext(ctx).
		Model(&model.PixPayment{}).
		Where("transaction_id = ? AND status = ?", transactionID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current model.PixPayment
	err := tx.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
	}
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, transactionID, current.Status)
	}
	return fmt.Errorf("%w: %s is %s, wanted %s -> %s", ErrInvalidTransition, transactionID, current.Status, from, to)
}

// CreditBalance atomically increments the user's balance at the storage
// layer and returns the new balance. Never a read-then-write.
func (r *Repository) CreditBalance(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	res := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
	}
	var u model.User
	if err := tx.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// GetBalance reads the balance from Postgres.
func (r *Repository) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// CreateTransaction inserts a balance audit row.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", userID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", userID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
