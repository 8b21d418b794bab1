package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pixelstore/recharge-service/internal/model"
)

// ErrTransient marks a status check that failed for network reasons and can
// be retried on the next tick.
var ErrTransient = errors.New("transient gateway error")

// ErrTransactionNotFound means the provider does not know the transaction id.
var ErrTransactionNotFound = errors.New("transaction not found")

// GatewayError is a hard failure from the provider (non-2xx on creation, or
// an unparseable body). Not retryable within the same attempt.
type GatewayError struct {
	HTTPStatus int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error: status=%d body=%q", e.HTTPStatus, e.Body)
}

// CreateResult is the normalized outcome of a transaction creation.
type CreateResult struct {
	TransactionID string
	PixCode       string
	QRCode        string
	RawStatus     string
}

// StatusResult is the normalized outcome of a status check.
type StatusResult struct {
	Status model.Status
	Raw    string
}

// Gateway abstracts the upstream PIX provider. Implementations must not
// touch persistence; amounts are assumed validated by the caller.
type Gateway interface {
	CreateTransaction(ctx context.Context, amount decimal.Decimal, description string) (*CreateResult, error)
	CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error)
}

// NormalizeStatus maps the provider's status vocabulary onto ours.
func NormalizeStatus(raw string) (model.Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "PROCESSING", "WAITING_PAYMENT":
		return model.StatusPending, nil
	case "APPROVED", "PAID", "COMPLETED":
		return model.StatusApproved, nil
	case "REFUSED", "REJECTED", "CANCELLED", "CANCELED", "CHARGEBACK":
		return model.StatusCancelled, nil
	case "EXPIRED":
		return model.StatusExpired, nil
	default:
		return "", fmt.Errorf("unknown gateway status %q", raw)
	}
}
