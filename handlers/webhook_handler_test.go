package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"momentumAPI/internal/user"
)

type fakeSyncer struct {
	synced  map[string]string
	deleted []string
}

func (f *fakeSyncer) SyncUser(_ context.Context, clerkID, email string) (*user.User, error) {
	f.synced[clerkID] = email
	return &user.User{ClerkID: clerkID}, nil
}

func (f *fakeSyncer) DeleteUser(_ context.Context, clerkID string) error {
	f.deleted = append(f.deleted, clerkID)
	return nil
}

func webhookRequest(t *testing.T, key []byte, at time.Time, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewBufferString(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", "v1,"+user.Sign(key, "msg_1", ts, []byte(body)))
	return req
}

func TestClerkWebhook(t *testing.T) {
	key := []byte("webhook-key")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	syncer := &fakeSyncer{synced: map[string]string{}}
	h := &WebhookHandler{
		users:  syncer,
		secret: "whsec_" + base64.StdEncoding.EncodeToString(key),
		logger: zap.NewNop(),
		now:    func() time.Time { return now },
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"type":"user.created","data":{"id":"user_1","primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"a@example.com"}]}}`, http.StatusOK},
		{"deleted", `{"type":"user.deleted","data":{"id":"user_2","deleted":true}}`, http.StatusOK},
		{"ignored type", `{"type":"session.created","data":{}}`, http.StatusOK},
		{"missing id", `{"type":"user.updated","data":{}}`, http.StatusBadRequest},
		{"bad json", `{"type":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleClerkWebhook(rec, webhookRequest(t, key, now, tt.body))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if syncer.synced["user_1"] != "a@example.com" {
		t.Errorf("synced = %v", syncer.synced)
	}
	if len(syncer.deleted) != 1 || syncer.deleted[0] != "user_2" {
		t.Errorf("deleted = %v", syncer.deleted)
	}
}

func TestClerkWebhookRejects(t *testing.T) {
	key := []byte("webhook-key")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	body := `{"type":"user.created","data":{"id":"user_1"}}`

	unconfigured := &WebhookHandler{users: &fakeSyncer{}, logger: zap.NewNop(), now: time.Now}
	rec := httptest.NewRecorder()
	unconfigured.HandleClerkWebhook(rec, webhookRequest(t, key, now, body))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d", rec.Code)
	}

	h := &WebhookHandler{
		users:  &fakeSyncer{synced: map[string]string{}},
		secret: "whsec_" + base64.StdEncoding.EncodeToString([]byte("other-key")),
		logger: zap.NewNop(),
		now:    func() time.Time { return now },
	}
	rec = httptest.NewRecorder()
	h.HandleClerkWebhook(rec, webhookRequest(t, key, now, body))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d", rec.Code)
	}
}
