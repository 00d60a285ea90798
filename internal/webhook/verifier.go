package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header carrying the processor signature,
// formatted as "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Commissary-Signature"

var (
	ErrMalformedSignature = errors.New("malformed_signature")
	ErrSignatureMismatch  = errors.New("signature_mismatch")
	ErrStaleTimestamp     = errors.New("stale_timestamp")
)

// Verifier authenticates raw webhook bodies before they are parsed.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
	}
}

// Verify checks the keyed hash over the raw, unparsed body against the
// signature header. The body must not be interpreted until this
// succeeds.
func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := now.Sub(time.Unix(signedAt, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrStaleTimestamp
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

func parseSignatureHeader(header string) (string, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil, ErrMalformedSignature
	}

	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrMalformedSignature
	}
	return timestamp, signatures, nil
}
