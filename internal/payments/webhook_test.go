package payments

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
)

const testSecret = "whsec_test_secret"

// eventPayload carries deliberate whitespace so any parse-then-reserialize
// step produces different bytes.
var eventPayload = []byte(`{
	"id": "evt_123",
	"type": "payment_intent.succeeded",
	"created": 1700000000,
	"data": {
		"object": {
			"id": "pi_123",
			"status": "succeeded",
			"amount": 6997,
			"currency": "usd",
			"metadata": {"orderId": "77"}
		}
	}
}`)

func TestConstructEventValidSignature(t *testing.T) {
	header := SignPayload(eventPayload, time.Now(), testSecret)

	event, err := ConstructEvent(eventPayload, header, testSecret)

	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, EventPaymentIntentSucceeded, event.Type)
	assert.Equal(t, "pi_123", event.Data.Object.ID)
	assert.Equal(t, IntentStatusSucceeded, event.Data.Object.Status)
	assert.EqualValues(t, 6997, event.Data.Object.AmountCents)
	assert.Equal(t, "77", event.Data.Object.Metadata["orderId"])
}

func TestConstructEventTamperedPayload(t *testing.T) {
	header := SignPayload(eventPayload, time.Now(), testSecret)

	tampered := append([]byte(nil), eventPayload...)
	tampered[len(tampered)-2] = ' '

	_, err := ConstructEvent(tampered, header, testSecret)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSignature))
}

// The classic integration bug: reading the body, parsing it, and
// re-serializing before verification. The re-encoded JSON is semantically
// identical but byte-different, so the signature must not verify.
func TestConstructEventReserializedBodyFails(t *testing.T) {
	header := SignPayload(eventPayload, time.Now(), testSecret)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(eventPayload, &parsed))
	reserialized, err := json.Marshal(parsed)
	require.NoError(t, err)
	require.NotEqual(t, eventPayload, reserialized)

	_, cerr := ConstructEvent(reserialized, header, testSecret)

	require.Error(t, cerr)
	assert.True(t, apperrors.IsKind(cerr, apperrors.KindSignature))
}

func TestConstructEventWrongSecret(t *testing.T) {
	header := SignPayload(eventPayload, time.Now(), "whsec_other")

	_, err := ConstructEvent(eventPayload, header, testSecret)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSignature))
}

func TestConstructEventStaleTimestamp(t *testing.T) {
	header := SignPayload(eventPayload, time.Now().Add(-10*time.Minute), testSecret)

	_, err := ConstructEvent(eventPayload, header, testSecret)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSignature))
	assert.Contains(t, err.Error(), "tolerance")
}

func TestConstructEventRotatedSecrets(t *testing.T) {
	// During secret rotation the gateway sends one v1 entry per secret;
	// any one matching is enough.
	now := time.Now()
	old := SignPayload(eventPayload, now, "whsec_old")
	current := SignPayload(eventPayload, now, testSecret)
	// Splice the current secret's v1 entry onto the old header.
	header := old + current[strings.Index(current, ",v1="):]

	event, err := ConstructEvent(eventPayload, header, testSecret)

	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
}

func TestConstructEventMalformedHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "empty", header: ""},
		{name: "no timestamp", header: "v1=abcdef"},
		{name: "no signature", header: "t=1700000000"},
		{name: "garbage timestamp", header: "t=yesterday,v1=abcdef"},
		{name: "wrong shape", header: "signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConstructEvent(eventPayload, tt.header, testSecret)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindSignature))
		})
	}
}

func TestConstructEventRejectsIncompleteEvent(t *testing.T) {
	payload := []byte(`{"type": "payment_intent.succeeded"}`)
	header := SignPayload(payload, time.Now(), testSecret)

	_, err := ConstructEvent(payload, header, testSecret)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSignature))
}
