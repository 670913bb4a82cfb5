// internal/domain/payment/signature.go
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
)

// Webhook event types delivered by the provider.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// DefaultSignatureTolerance bounds how old a signed webhook timestamp may be.
const DefaultSignatureTolerance = 5 * time.Minute

// Event is the parsed webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// ConstructEvent verifies the signature header against the raw payload and,
// only if it checks out, parses the event. Verification fails closed: any
// malformed header, stale timestamp, or digest mismatch rejects the payload.
//
// The header format is "t=<unix>,v1=<hex hmac>" where the hmac is
// SHA-256 over "<unix>.<payload>" keyed with the shared webhook secret.
func ConstructEvent(payload []byte, sigHeader, secret string, tolerance time.Duration) (*Event, error) {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return nil, apperror.Signature("webhook timestamp outside tolerance", nil)
		}
	}

	expected := computeSignature(timestamp, payload, secret)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, apperror.Signature("webhook signature mismatch", nil)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperror.Signature("invalid webhook payload", err)
	}
	return &event, nil
}

// SignPayload produces a valid signature header for a payload. Tests and
// local tooling use it to fabricate deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	timestamp := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeSignature(timestamp, payload, secret))
}

func computeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, apperror.Signature("missing signature header", nil)
	}

	var timestamp int64 = -1
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, apperror.Signature("malformed signature timestamp", err)
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, apperror.Signature("malformed signature header", nil)
	}
	return timestamp, signatures, nil
}
