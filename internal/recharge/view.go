package recharge

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State is the orchestrator-side lifecycle of one recharge attempt.
type State string

const (
	StateIdle      State = "IDLE"
	StateCreating  State = "CREATING"
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
	// StateCreditFailed is the operator-attention state: the gateway
	// confirmed payment but the balance credit could not be applied.
	StateCreditFailed State = "CREDIT_FAILED"
)

// Terminal reports whether the attempt will make no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateExpired, StateCancelled, StateCreditFailed:
		return true
	}
	return false
}

// Snapshot is the view state pushed to the presentation host.
type Snapshot struct {
	AttemptID     string          `json:"attempt_id"`
	TransactionID string          `json:"transaction_id"`
	Status        State           `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Bonus         decimal.Decimal `json:"bonus"`
	Total         decimal.Decimal `json:"total"`
	TimeLeft      int             `json:"time_left_seconds"`
	Countdown     string          `json:"countdown"`
	PixCode       string          `json:"pix_code"`
	QRCode        string          `json:"qr_code"`
	PollCount     int             `json:"poll_count"`
}

// FormatCountdown renders remaining seconds as mm:ss.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func secondsUntil(t time.Time) int {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
