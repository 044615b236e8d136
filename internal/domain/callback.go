package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Callback metadata item names sent by the push-payment provider.
const (
	ItemAmount      = "Amount"
	ItemReceipt     = "MpesaReceiptNumber"
	ItemPhoneNumber = "PhoneNumber"
)

// CallbackEnvelope is the provider's STK callback body.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string          `json:"MerchantRequestID"`
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        string          `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// CallbackAck is the only response body the provider ever sees once the
// caller is authenticated.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var AcceptedAck = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}

var ErrAmountPrecision = errors.New("amount has more than two decimal places")

// ParseCallback decodes a raw callback body.
func ParseCallback(body []byte) (*CallbackEnvelope, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// Succeeded is true only for a numeric zero result code.
func (c *STKCallback) Succeeded() bool {
	raw := bytes.TrimSpace(c.ResultCode)
	if len(raw) == 0 || raw[0] == '"' {
		return false
	}
	code, err := decimal.NewFromString(string(raw))
	return err == nil && code.IsZero()
}

// Metadata flattens the item list. Items without a name are dropped and a
// repeated name keeps its last value.
func (c *STKCallback) Metadata() CallbackMetadata {
	md := make(CallbackMetadata, len(c.CallbackMetadata.Item))
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == "" {
			continue
		}
		md[item.Name] = item.Value
	}
	return md
}

type CallbackMetadata map[string]json.RawMessage

// Value returns the item as text. JSON strings are unquoted, other literals
// are returned verbatim. ok is false for absent or null items.
func (m CallbackMetadata) Value(name string) (string, bool) {
	raw, found := m[name]
	if !found {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	}
	return string(raw), true
}

// ParseAmount parses a callback amount. Amounts with more precision than
// the ledger stores are rejected rather than rounded.
func ParseAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.Equal(amount.Truncate(CurrencyPlaces)) {
		return decimal.Zero, ErrAmountPrecision
	}
	return amount, nil
}
