package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var ErrAllPushesFailed = errors.New("all push notifications failed")

type FCMService struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMService prefers base64 credentials from FCM_SERVICE_ACCOUNT_JSON and
// falls back to the service account file at localFilePath.
func NewFCMService(ctx context.Context, localFilePath string, logger *zap.Logger) (*FCMService, error) {
	var opt option.ClientOption

	if encoded := os.Getenv("FCM_SERVICE_ACCOUNT_JSON"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FCM_SERVICE_ACCOUNT_JSON: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("fcm_credentials_source", zap.String("source", "env"))
	} else {
		if _, err := os.Stat(localFilePath); err != nil {
			return nil, fmt.Errorf("firebase credentials not found at %s and FCM_SERVICE_ACCOUNT_JSON is not set: %w", localFilePath, err)
		}
		opt = option.WithCredentialsFile(localFilePath)
		logger.Info("fcm_credentials_source", zap.String("source", "file"), zap.String("path", localFilePath))
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMService{client: client, logger: logger}, nil
}

// SendPush sends to each device individually. It fails only when every device failed.
func (s *FCMService) SendPush(ctx context.Context, tokens []DeviceToken, p Push) error {
	if len(tokens) == 0 {
		return nil
	}

	sent, failed := 0, 0
	for _, t := range tokens {
		if _, err := s.client.Send(ctx, buildMessage(t, p)); err != nil {
			s.logger.Warn("fcm_send_failed",
				zap.String("user_id", p.UserID.String()),
				zap.String("platform", t.Platform),
				zap.Error(err),
			)
			failed++
			continue
		}
		sent++
	}

	s.logger.Info("fcm_push_sent",
		zap.String("kind", string(p.Kind)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	if sent == 0 && failed > 0 {
		return ErrAllPushesFailed
	}
	return nil
}

func buildMessage(t DeviceToken, p Push) *messaging.Message {
	msg := &messaging.Message{
		Token: t.Token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
	}

	switch t.Platform {
	case "ios":
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	default:
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		}
	}
	return msg
}
