package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const EventTypeSaleCompleted = "sale_completed"

var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrInvalidEvent   = errors.New("invalid_event")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidPartner = errors.New("invalid_partner")
	// ErrEventIgnored marks event types outside the closed variant set;
	// the delivery is acknowledged without side effects.
	ErrEventIgnored = errors.New("event_ignored")
)

// SaleEvent is the canonical completed-sale notification, parsed only
// after signature verification.
type SaleEvent struct {
	EventID     string
	PartnerID   snowflake.ID
	CustomerRef string
	Amount      decimal.Decimal
	Currency    string
	Source      string
	PaymentRef  string
	OccurredAt  time.Time
	RawPayload  []byte
}

type envelope struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    envelopeData `json:"data"`
}

type envelopeData struct {
	Object json.RawMessage `json:"object"`
}

type saleObject struct {
	PartnerID   string          `json:"partner_id"`
	CustomerRef string          `json:"customer_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Source      string          `json:"source"`
	PaymentRef  string          `json:"payment_ref"`
}

// ParseEvent decodes a verified body into the closed set of typed
// events. Unknown types return ErrEventIgnored rather than an error the
// caller would retry.
func ParseEvent(payload []byte) (*SaleEvent, error) {
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}

	var event envelope
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case EventTypeSaleCompleted:
		return parseSale(event, payload)
	default:
		return nil, ErrEventIgnored
	}
}

func parseSale(event envelope, payload []byte) (*SaleEvent, error) {
	var sale saleObject
	if err := json.Unmarshal(event.Data.Object, &sale); err != nil {
		return nil, ErrInvalidPayload
	}

	partnerID, err := snowflake.ParseString(strings.TrimSpace(sale.PartnerID))
	if err != nil || partnerID == 0 {
		return nil, ErrInvalidPartner
	}
	if sale.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	paymentRef := strings.TrimSpace(sale.PaymentRef)
	if paymentRef == "" {
		return nil, ErrInvalidEvent
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}

	return &SaleEvent{
		EventID:     strings.TrimSpace(event.ID),
		PartnerID:   partnerID,
		CustomerRef: strings.TrimSpace(sale.CustomerRef),
		Amount:      sale.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(sale.Currency)),
		Source:      strings.TrimSpace(sale.Source),
		PaymentRef:  paymentRef,
		OccurredAt:  occurredAt,
		RawPayload:  payload,
	}, nil
}
