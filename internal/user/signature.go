package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeaders   = errors.New("missing webhook signature headers")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// SignatureTolerance bounds how far the svix timestamp may drift from now.
const SignatureTolerance = 5 * time.Minute

// VerifySignature checks a Clerk (svix) webhook. The secret is the "whsec_" value from the dashboard.
func VerifySignature(secret string, header http.Header, body []byte, now time.Time) error {
	id := header.Get("svix-id")
	ts := header.Get("svix-timestamp")
	sigs := header.Get("svix-signature")
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad svix-timestamp %q: %w", ts, ErrInvalidSignature)
	}
	sent := time.Unix(unix, 0)
	if now.Sub(sent) > SignatureTolerance || sent.Sub(now) > SignatureTolerance {
		return ErrStaleTimestamp
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return fmt.Errorf("failed to decode webhook secret: %w", err)
	}
	expected := Sign(key, id, ts, body)

	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the base64 v1 signature for a message.
func Sign(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
