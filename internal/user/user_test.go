package user

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func signedHeader(key []byte, id string, at time.Time, body []byte) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,stale v1,"+Sign(key, id, ts, body))
	return h
}

func TestVerifySignature(t *testing.T) {
	key := []byte("super-secret-webhook-key")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"type":"user.created","data":{}}`)

	if err := VerifySignature(secret, signedHeader(key, "msg_1", now, body), body, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	tests := []struct {
		name   string
		header http.Header
		body   []byte
		want   error
	}{
		{"missing headers", http.Header{}, body, ErrMissingHeaders},
		{"tampered body", signedHeader(key, "msg_1", now, body), []byte(`{"type":"user.deleted"}`), ErrInvalidSignature},
		{"wrong key", signedHeader([]byte("other"), "msg_1", now, body), body, ErrInvalidSignature},
		{"stale", signedHeader(key, "msg_1", now.Add(-10*time.Minute), body), body, ErrStaleTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, tt.header, tt.body, now)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrimaryEmail(t *testing.T) {
	d := ClerkUserData{
		PrimaryEmailAddressID: "e2",
		EmailAddresses: []ClerkEmailAddress{
			{ID: "e1", EmailAddress: "old@example.com"},
			{ID: "e2", EmailAddress: "main@example.com"},
		},
	}
	if got := d.PrimaryEmail(); got != "main@example.com" {
		t.Errorf("primary = %q", got)
	}
	d.PrimaryEmailAddressID = "missing"
	if got := d.PrimaryEmail(); got != "old@example.com" {
		t.Errorf("fallback = %q", got)
	}
	if got := (ClerkUserData{}).PrimaryEmail(); got != "" {
		t.Errorf("empty = %q", got)
	}
}
