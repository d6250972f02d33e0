// Package push delivers Web Push notifications for members who are not
// connected over the websocket. Browser subscriptions live in Redis with a
// TTL; expired or rejected endpoints are pruned on send.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/roadmanjs/roadman-chat/internal/logger"
)

const (
	redisKeyPrefix  = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
	sendTimeout     = 10 * time.Second
)

// Subscription is the browser push subscription as delivered by the
// PushManager API.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender sends Web Push notifications. A nil Sender (no Redis or no VAPID
// keys configured) is a valid no-op.
type Sender struct {
	redis *redis.Client
	vapid *webpush.Options
}

// NewSender returns nil when prerequisites are missing so that callers can
// hold a plain nil-checked field.
func NewSender(rdb *redis.Client, keys *VAPIDKeys, subscriberEmail string) *Sender {
	if rdb == nil || keys == nil || keys.PublicKey == "" || keys.PrivateKey == "" {
		return nil
	}
	return &Sender{
		redis: rdb,
		vapid: &webpush.Options{
			Subscriber:      subscriberEmail,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             60,
		},
	}
}

func subsKey(userID string) string { return redisKeyPrefix + userID }

// Subscribe stores a browser subscription for the user, bounded per user.
func (s *Sender) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := subsKey(userID)
	if err := s.redis.HSet(ctx, key, sub.Endpoint, raw).Err(); err != nil {
		return err
	}
	s.redis.Expire(ctx, key, subscriptionTTL)

	// Bound the hash: evict arbitrary extras beyond the cap.
	fields, err := s.redis.HKeys(ctx, key).Result()
	if err == nil && len(fields) > maxSubsPerUser {
		for _, f := range fields[:len(fields)-maxSubsPerUser] {
			s.redis.HDel(ctx, key, f)
		}
	}
	return nil
}

// Unsubscribe removes one endpoint for the user.
func (s *Sender) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if s == nil {
		return nil
	}
	return s.redis.HDel(ctx, subsKey(userID), endpoint).Err()
}

// Notify pushes to every subscription the user has. Gone endpoints (404/410)
// are removed; other failures are logged and skipped.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s == nil {
		return
	}
	defer logger.DeferLogDuration("push.Notify", time.Now())()

	subs, err := s.redis.HGetAll(ctx, subsKey(userID)).Result()
	if err != nil {
		logger.Errorf("push load subs user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(notification{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push marshal payload: %v", err)
		return
	}

	for endpoint, raw := range subs {
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			s.redis.HDel(ctx, subsKey(userID), endpoint)
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, wpSub, s.vapid)
		cancel()
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			s.redis.HDel(ctx, subsKey(userID), endpoint)
		}
		resp.Body.Close()
	}
}
