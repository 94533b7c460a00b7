package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
)

// Event types the reconciliation flow cares about. Everything else is
// acknowledged and ignored.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// Event is a webhook delivery from the gateway.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// DefaultTolerance bounds how old a webhook timestamp may be. Stale
// signatures are rejected to blunt replay of captured deliveries.
const DefaultTolerance = 5 * time.Minute

// ConstructEvent verifies the signature header against the raw request body
// and parses the event. The payload MUST be the exact bytes read off the
// wire: parsing and re-serializing the JSON first produces different bytes
// and a signature that can never match.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	return constructEventAt(payload, sigHeader, secret, time.Now())
}

func constructEventAt(payload []byte, sigHeader, secret string, now time.Time) (*Event, error) {
	ts, sigs, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if now.Sub(time.Unix(ts, 0)) > DefaultTolerance {
		return nil, apperrors.New(apperrors.KindSignature, "Webhook timestamp outside tolerance")
	}

	expected := computeSignature(ts, payload, secret)
	var match bool
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			match = true
			break
		}
	}
	if !match {
		return nil, apperrors.New(apperrors.KindSignature, "Webhook signature verification failed")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSignature, "Webhook payload is not valid JSON", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, apperrors.New(apperrors.KindSignature, "Webhook payload missing event id or type")
	}
	return &event, nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>…]". Multiple v1
// entries appear while the endpoint secret is being rotated.
func parseSignatureHeader(header string) (ts int64, sigs []string, err error) {
	if header == "" {
		return 0, nil, apperrors.New(apperrors.KindSignature, "Missing signature header")
	}

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, apperrors.New(apperrors.KindSignature, "Malformed signature timestamp")
			}
		case "v1":
			sigs = append(sigs, v)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, apperrors.New(apperrors.KindSignature, "Malformed signature header")
	}
	return ts, sigs, nil
}

// computeSignature is HMAC-SHA256 over "<timestamp>.<payload>".
func computeSignature(ts int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload builds a valid signature header for a payload. The gateway
// does this on its side; it exists here for tests and local tooling that
// need to exercise the webhook endpoint.
func SignPayload(payload []byte, at time.Time, secret string) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(ts, payload, secret))
}
