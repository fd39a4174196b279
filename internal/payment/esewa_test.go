package payment

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "8gBm/:&EnhH.1/q"

func TestSign_ProviderExample(t *testing.T) {
	fields := map[string]string{
		"total_amount":     "110",
		"transaction_uuid": "241028",
		"product_code":     "EPAYTEST",
	}
	msg, err := SigningString(fields, RequestSignedFields)
	require.NoError(t, err)
	assert.Equal(t, "total_amount=110,transaction_uuid=241028,product_code=EPAYTEST", msg)
	assert.Equal(t, "i94zsd3oXF6ZsSr/kGqT4sSzYQzjj1W/waxjWyRwaME=", Sign(testSecret, msg))
}

func TestSigningString_FollowsListedOrder(t *testing.T) {
	fields := map[string]string{"a": "1", "b": "2", "c": "3"}

	msg, err := SigningString(fields, " c, a ,,b ")
	require.NoError(t, err)
	assert.Equal(t, "c=3,a=1,b=2", msg)

	_, err = SigningString(fields, "a,missing")
	assert.Error(t, err)
}

func TestDecodePayload_KeepsNumbersVerbatim(t *testing.T) {
	raw := `{"transaction_code":"000AWEO","status":"COMPLETE","total_amount":1000.0,` +
		`"transaction_uuid":"250610-162413","product_code":"EPAYTEST",` +
		`"signed_field_names":"transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",` +
		`"signature":"x","ref":null,"test":true}`

	p, err := DecodePayload(base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, "1000.0", p.TotalAmount())
	assert.Equal(t, "COMPLETE", p.Status())
	assert.Equal(t, "000AWEO", p.TransactionCode())
	assert.Equal(t, "true", p.Fields["test"])
	assert.NotContains(t, p.Fields, "ref")

	// Unpadded input is accepted too.
	p, err = DecodePayload(base64.RawStdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, "250610-162413", p.TransactionUUID())
}

func TestDecodePayload_Rejects(t *testing.T) {
	for _, in := range []string{"", "!!!not base64!!!", base64.StdEncoding.EncodeToString([]byte("not json"))} {
		_, err := DecodePayload(in)
		assert.Error(t, err, in)
	}
}

func signedPayload(t *testing.T, secret string, fields map[string]string) Payload {
	t.Helper()
	fields["signed_field_names"] = "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"
	sig, err := SignFields(secret, fields, fields["signed_field_names"])
	require.NoError(t, err)
	fields["signature"] = sig
	return Payload{Fields: fields}
}

func TestVerify(t *testing.T) {
	fields := func() map[string]string {
		return map[string]string{
			"transaction_code": "000AWEO", "status": "COMPLETE", "total_amount": "1000.0",
			"transaction_uuid": "u-1", "product_code": "EPAYTEST",
		}
	}
	p := signedPayload(t, testSecret, fields())
	assert.True(t, Verify(testSecret, p))
	assert.False(t, Verify("other-secret", p))

	for field, value := range map[string]string{
		"total_amount":     "1.0",
		"transaction_uuid": "u-2",
		"product_code":     "OTHER",
		"status":           "CANCELED",
		"transaction_code": "000XXXX",
	} {
		tampered := signedPayload(t, testSecret, fields())
		tampered.Fields[field] = value
		assert.False(t, Verify(testSecret, tampered), "tampered %s", field)
	}

	delete(p.Fields, "signature")
	assert.False(t, Verify(testSecret, p))
}

func TestIsFailedStatus(t *testing.T) {
	for _, s := range []string{StatusCanceled, StatusNotFound, StatusFullRefund, StatusPartialRefund} {
		assert.True(t, IsFailedStatus(s), s)
	}
	for _, s := range []string{StatusComplete, StatusPending, StatusAmbiguous, "", "UNKNOWN"} {
		assert.False(t, IsFailedStatus(s), s)
	}
}

func TestSameAmount(t *testing.T) {
	assert.True(t, SameAmount("1000", "1000.0"))
	assert.True(t, SameAmount(" 1500.00", "1500"))
	assert.False(t, SameAmount("1500", "1499.99"))
	assert.False(t, SameAmount("abc", "abc"))
}
