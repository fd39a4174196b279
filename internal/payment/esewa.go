package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// RequestSignedFields are the fields eSewa expects to be signed on the
// payment form.
const RequestSignedFields = "total_amount,transaction_uuid,product_code"

// Provider payment statuses.
const (
	StatusComplete      = "COMPLETE"
	StatusPending       = "PENDING"
	StatusAmbiguous     = "AMBIGUOUS"
	StatusCanceled      = "CANCELED"
	StatusNotFound      = "NOT_FOUND"
	StatusFullRefund    = "FULL_REFUND"
	StatusPartialRefund = "PARTIAL_REFUND"
)

// IsFailedStatus reports whether the provider has settled the payment as
// not taken. PENDING, AMBIGUOUS and unknown statuses are not final.
func IsFailedStatus(status string) bool {
	switch status {
	case StatusCanceled, StatusNotFound, StatusFullRefund, StatusPartialRefund:
		return true
	}
	return false
}

// SignedFieldNames splits a signed_field_names value, trimming names and
// skipping empties.
func SignedFieldNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SigningString builds "k1=v1,k2=v2,..." in the order of signedFieldNames.
// It fails if a named field is absent.
func SigningString(fields map[string]string, signedFieldNames string) (string, error) {
	names := SignedFieldNames(signedFieldNames)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("signed field %q missing", name)
		}
		parts = append(parts, name+"="+v)
	}
	return strings.Join(parts, ","), nil
}

// Sign computes base64(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignFields signs fields over the names listed in signedFieldNames.
func SignFields(secret string, fields map[string]string, signedFieldNames string) (string, error) {
	msg, err := SigningString(fields, signedFieldNames)
	if err != nil {
		return "", err
	}
	return Sign(secret, msg), nil
}

// Verify recomputes the signature of a payload over its own
// signed_field_names and compares it in constant time.
func Verify(secret string, p Payload) bool {
	received := p.Fields["signature"]
	if received == "" {
		return false
	}
	expected, err := SignFields(secret, p.Fields, p.Fields["signed_field_names"])
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(received), []byte(expected))
}

// Payload is a decoded provider callback. Every value is kept as the exact
// text the provider sent, so numbers like 1000.0 are signed as "1000.0".
type Payload struct {
	Fields map[string]string
}

func (p Payload) TransactionUUID() string { return p.Fields["transaction_uuid"] }
func (p Payload) TransactionCode() string { return p.Fields["transaction_code"] }
func (p Payload) Status() string          { return p.Fields["status"] }
func (p Payload) TotalAmount() string     { return p.Fields["total_amount"] }
func (p Payload) ProductCode() string     { return p.Fields["product_code"] }

// DecodePayload turns the base64 "data" query value into a Payload.
func DecodePayload(encoded string) (Payload, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Payload{}, fmt.Errorf("missing data")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Query strings sometimes arrive with '+' turned into ' ' or without
		// padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(strings.ReplaceAll(encoded, " ", "+"), "="))
		if err != nil {
			return Payload{}, fmt.Errorf("decode base64: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Payload{}, fmt.Errorf("decode json: %w", err)
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
			// absent for signing purposes
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			if val {
				fields[k] = "true"
			} else {
				fields[k] = "false"
			}
		default:
			b, _ := json.Marshal(val)
			fields[k] = string(b)
		}
	}
	return Payload{Fields: fields}, nil
}

// EncodePayload is the inverse of DecodePayload for string fields. It is
// what the provider does before redirecting back.
func EncodePayload(fields map[string]string) string {
	b, _ := json.Marshal(fields)
	return base64.StdEncoding.EncodeToString(b)
}

// SameAmount compares two decimal amounts numerically, so "1000" and
// "1000.0" match.
func SameAmount(a, b string) bool {
	x, ok := new(big.Rat).SetString(strings.TrimSpace(a))
	if !ok {
		return false
	}
	y, ok := new(big.Rat).SetString(strings.TrimSpace(b))
	if !ok {
		return false
	}
	return x.Cmp(y) == 0
}
