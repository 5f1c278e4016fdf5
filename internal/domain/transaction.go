package domain

import (
	"fmt"
	"math"
	"time"
)

// TransactionType classifies the payment being scored.
type TransactionType string

const (
	TypeP2P            TransactionType = "p2p"
	TypeP2M            TransactionType = "p2m"
	TypeBillPayment    TransactionType = "bill_payment"
	TypeMobileRecharge TransactionType = "mobile_recharge"
	TypeBankTransfer   TransactionType = "bank_transfer"
	TypeCashIn         TransactionType = "cash_in"
	TypeCashOut        TransactionType = "cash_out"
	TypeInternational  TransactionType = "international"
	TypeSalary         TransactionType = "salary"
	TypeRefund         TransactionType = "refund"
)

var validTypes = map[TransactionType]bool{
	TypeP2P: true, TypeP2M: true, TypeBillPayment: true, TypeMobileRecharge: true,
	TypeBankTransfer: true, TypeCashIn: true, TypeCashOut: true,
	TypeInternational: true, TypeSalary: true, TypeRefund: true,
}

// Channel is the origination channel of a transaction.
type Channel string

const (
	ChannelApp   Channel = "app"
	ChannelUSSD  Channel = "ussd"
	ChannelWeb   Channel = "web"
	ChannelAgent Channel = "agent"
	ChannelATM   Channel = "atm"
)

var validChannels = map[Channel]bool{
	ChannelApp: true, ChannelUSSD: true, ChannelWeb: true,
	ChannelAgent: true, ChannelATM: true,
}

// Geo is an optional transaction origin location.
type Geo struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
}

// TransactionRequest is the immutable input to one pipeline invocation.
// The TransactionID is caller-supplied and is the idempotency key for the
// whole pipeline: resubmission returns the previously persisted assessment.
// Downstream stages hold a reference to the request and never mutate it.
type TransactionRequest struct {
	TransactionID   string          `json:"transaction_id"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	SenderAccount   string          `json:"sender_account"`
	ReceiverAccount string          `json:"receiver_account"`
	Type            TransactionType `json:"type"`
	Channel         Channel         `json:"channel"`

	// Optional enrichment fields.
	DeviceID  string         `json:"device_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	Geo       *Geo           `json:"geo,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Normalize fills defaults the caller may omit. Called once at ingress,
// before Validate.
func (r *TransactionRequest) Normalize() {
	if r.Channel == "" {
		r.Channel = ChannelApp
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

// Validate checks structural validity. Amount-ceiling enforcement is not
// validation: a transaction above the configured ceiling is accepted here
// and force-rejected by the rule engine so the event is assessed and audited.
func (r *TransactionRequest) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if r.Amount <= 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return fmt.Errorf("amount must be a positive finite number")
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code")
	}
	if r.SenderAccount == "" {
		return fmt.Errorf("sender_account is required")
	}
	if r.ReceiverAccount == "" {
		return fmt.Errorf("receiver_account is required")
	}
	if !validTypes[r.Type] {
		return fmt.Errorf("unknown transaction type %q", r.Type)
	}
	if !validChannels[r.Channel] {
		return fmt.Errorf("unknown channel %q", r.Channel)
	}
	// Self-transfers only make sense for wallet load/unload.
	if r.SenderAccount == r.ReceiverAccount && r.Type != TypeCashIn && r.Type != TypeCashOut {
		return fmt.Errorf("sender and receiver must differ for type %q", r.Type)
	}
	return nil
}

// IsInternational reports whether the request crosses a border, from either
// the declared type or the geolocation.
func (r *TransactionRequest) IsInternational(homeCountry string) bool {
	if r.Type == TypeInternational {
		return true
	}
	return r.Geo != nil && r.Geo.Country != "" && r.Geo.Country != homeCountry
}
