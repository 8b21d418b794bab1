package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pixelstore/recharge-service/internal/model"
)

const (
	fakePixCode = "00020126870014br.gov.bcb.pix2565pix.example.com/qr/v3/at/fake5204000053039865802BR6304F6AA"
	fakeQRCode  = "data:image/png;base64,ZmFrZS1xcg=="
)

type fakeTx struct {
	status model.Status
	checks int
}

// Fake is an in-memory Gateway for tests and local runs. By default every
// transaction stays pending; ApproveAfter flips it to approved once that many
// status checks have been observed.
type Fake struct {
	mu sync.Mutex

	// ApproveAfter auto-approves a transaction on the Nth status check.
	// Zero disables auto-approval.
	ApproveAfter int

	txs         map[string]*fakeTx
	createErr   error
	checkErrs   []error
	createCalls int
	checkCalls  int
}

func NewFake() *Fake {
	return &Fake{txs: make(map[string]*fakeTx)}
}

func (f *Fake) CreateTransaction(ctx context.Context, amount decimal.Decimal, description string) (*CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return nil, err
	}
	id := "txn_" + uuid.NewString()
	f.txs[id] = &fakeTx{status: model.StatusPending}
	return &CreateResult{
		TransactionID: id,
		PixCode:       fakePixCode,
		QRCode:        fakeQRCode,
		RawStatus:     "PENDING",
	}, nil
}

func (f *Fake) CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if len(f.checkErrs) > 0 {
		err := f.checkErrs[0]
		f.checkErrs = f.checkErrs[1:]
		return nil, err
	}
	tx, ok := f.txs[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	tx.checks++
	if f.ApproveAfter > 0 && tx.status == model.StatusPending && tx.checks >= f.ApproveAfter {
		tx.status = model.StatusApproved
	}
	return &StatusResult{Status: tx.status, Raw: string(tx.status)}, nil
}

// SetStatus scripts the provider-side state of a transaction.
func (f *Fake) SetStatus(transactionID string, status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[transactionID]; ok {
		tx.status = status
	} else {
		f.txs[transactionID] = &fakeTx{status: status}
	}
}

// FailNextCreate makes the next CreateTransaction call return err once.
func (f *Fake) FailNextCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// FailChecks queues errors returned by subsequent CheckStatus calls.
func (f *Fake) FailChecks(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkErrs = append(f.checkErrs, errs...)
}

func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *Fake) CheckCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkCalls
}
