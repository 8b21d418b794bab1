package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Fixed payer metadata the provider requires on every purchase.
var defaultPayer = payer{
	Name:  "Ana Pereira",
	Email: "ana.pereira@example.com",
	CPF:   "52634731841",
	Phone: "11948710683",
}

type payer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
	Phone string `json:"phone"`
}

type purchaseItem struct {
	UnitPrice int64  `json:"unitPrice"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Tangible  bool   `json:"tangible"`
}

type purchaseRequest struct {
	payer
	PaymentMethod string         `json:"paymentMethod"`
	Amount        int64          `json:"amount"`
	Traceable     bool           `json:"traceable"`
	Items         []purchaseItem `json:"items"`
}

type purchaseResponse struct {
	ID        string `json:"id"`
	PixCode   string `json:"pixCode"`
	PixQRCode string `json:"pixQrCode"`
	Status    string `json:"status"`
}

type detailsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GhostClient talks to the GhostPay HTTP API. Amounts go over the wire in
// centavos; authorization is the raw secret key header.
type GhostClient struct {
	http *resty.Client
}

// NewGhostClient builds a client with a bounded per-request timeout.
func NewGhostClient(baseURL, secretKey string, timeout time.Duration) *GhostClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", secretKey)
	return &GhostClient{http: c}
}

func (g *GhostClient) CreateTransaction(ctx context.Context, amount decimal.Decimal, description string) (*CreateResult, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	req := purchaseRequest{
		payer:         defaultPayer,
		PaymentMethod: "PIX",
		Amount:        cents,
		Traceable:     true,
		Items: []purchaseItem{{
			UnitPrice: cents,
			Title:     description,
			Quantity:  1,
			Tangible:  false,
		}},
	}

	var out purchaseResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/transaction.purchase")
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrTransient, err)
	}
	if !resp.IsSuccess() {
		return nil, &GatewayError{HTTPStatus: resp.StatusCode(), Body: resp.String()}
	}
	if out.ID == "" {
		return nil, &GatewayError{HTTPStatus: resp.StatusCode(), Body: "missing transaction id in response"}
	}
	return &CreateResult{
		TransactionID: out.ID,
		PixCode:       out.PixCode,
		QRCode:        out.PixQRCode,
		RawStatus:     out.Status,
	}, nil
}

func (g *GhostClient) CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	var out detailsResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("id", transactionID).
		SetResult(&out).
		Get("/transaction.getPaymentDetails")
	if err != nil {
		return nil, fmt.Errorf("%w: check %s: %v", ErrTransient, transactionID, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: check %s: status=%d", ErrTransient, transactionID, resp.StatusCode())
	case !resp.IsSuccess():
		return nil, &GatewayError{HTTPStatus: resp.StatusCode(), Body: resp.String()}
	}
	status, err := NormalizeStatus(out.Status)
	if err != nil {
		return nil, &GatewayError{HTTPStatus: resp.StatusCode(), Body: err.Error()}
	}
	return &StatusResult{Status: status, Raw: out.Status}, nil
}
