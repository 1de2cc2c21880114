package webhook

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"order-reconciler/internal/domain"
)

// Verifier authenticates one inbound webhook delivery. Implementations must
// not mutate any state: verification always runs before ingestion.
type Verifier interface {
	Verify(body []byte, header string) error
}

// StripeVerifier checks the Stripe-Signature header scheme:
// "t=<unix>,v1=<hex hmac-sha256 of '<t>.<body>'>".
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

func (v *StripeVerifier) Verify(body []byte, header string) error {
	if header == "" {
		return domain.New(domain.CodeMissingSignature, "signature header absent")
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return domain.New(domain.CodeInvalidSignature, "malformed timestamp")
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return domain.New(domain.CodeInvalidSignature, "signature header incomplete")
	}

	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age > v.tolerance || age < -v.tolerance {
			return domain.New(domain.CodeInvalidSignature, "timestamp outside tolerance")
		}
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, c := range candidates {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(c)) == 1 {
			return nil
		}
	}
	return domain.New(domain.CodeInvalidSignature, "signature mismatch")
}

// MonobankVerifier checks the X-Sign header: base64 ECDSA signature over
// the SHA-256 of the raw body, verified against the provider's published
// public key (base64 DER).
type MonobankVerifier struct {
	pub *ecdsa.PublicKey
}

func NewMonobankVerifier(publicKeyBase64 string) (*MonobankVerifier, error) {
	if publicKeyBase64 == "" {
		// No key configured: every delivery is rejected rather than
		// letting unverified payloads through.
		return &MonobankVerifier{}, nil
	}
	der, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode monobank public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monobank public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("monobank public key is not ECDSA")
	}
	return &MonobankVerifier{pub: pub}, nil
}

func (v *MonobankVerifier) Verify(body []byte, header string) error {
	if header == "" {
		return domain.New(domain.CodeMissingSignature, "x-sign header absent")
	}
	if v.pub == nil {
		return domain.New(domain.CodeInvalidSignature, "verification key not configured")
	}
	sig, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return domain.New(domain.CodeInvalidSignature, "x-sign is not valid base64")
	}

	digest := sha256.Sum256(body)
	if !ecdsa.VerifyASN1(v.pub, digest[:], sig) {
		return domain.New(domain.CodeInvalidSignature, "x-sign verification failed")
	}
	return nil
}
