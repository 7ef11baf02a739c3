package live

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"studenttracker/internal/model"
	"studenttracker/internal/tracking"
)

// Cache holds the short-lived live-tracking state in redis: one-time
// websocket connect tickets and the most recent sample per student. The
// whole component is optional; a nil *Cache disables both features.
type Cache struct {
	redis     *redis.Client
	ticketTTL time.Duration
	lastTTL   time.Duration
}

func NewCache(client *redis.Client, ticketTTL, lastTTL time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{redis: client, ticketTTL: ticketTTL, lastTTL: lastTTL}
}

type ticketRecord struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
}

func ticketKey(ticket string) string {
	return fmt.Sprintf("wsticket:%s", ticket)
}

func lastLocationKey(studentID string) string {
	return fmt.Sprintf("lastloc:%s", studentID)
}

// ErrDisabled is returned by ticket operations when no redis backend is
// configured.
var ErrDisabled = fmt.Errorf("live: redis not configured")

// IssueTicket mints a single-use websocket connect ticket bound to an
// identity. Tickets expire on their own; redeeming consumes them.
func (c *Cache) IssueTicket(ctx context.Context, who model.Identity) (string, error) {
	if c == nil || c.redis == nil {
		return "", ErrDisabled
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	ticket := base64.RawURLEncoding.EncodeToString(buf)

	data, err := json.Marshal(ticketRecord{UserID: who.UserID, UserType: string(who.Role)})
	if err != nil {
		return "", err
	}
	if err := c.redis.Set(ctx, ticketKey(ticket), data, c.ticketTTL).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

// RedeemTicket consumes a ticket and returns the identity it was bound to.
// The second return is false for unknown, expired or already-used tickets.
func (c *Cache) RedeemTicket(ctx context.Context, ticket string) (model.Identity, bool, error) {
	if c == nil || c.redis == nil {
		return model.Identity{}, false, ErrDisabled
	}
	value, err := c.redis.GetDel(ctx, ticketKey(ticket)).Result()
	if err == redis.Nil {
		return model.Identity{}, false, nil
	}
	if err != nil {
		return model.Identity{}, false, err
	}
	var record ticketRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return model.Identity{}, false, err
	}
	role, err := model.ParseRole(record.UserType)
	if err != nil {
		return model.Identity{}, false, nil
	}
	return model.Identity{UserID: record.UserID, Role: role}, true, nil
}

// SetLast caches the student's newest sample. Best effort: a cache miss is
// never worth failing a submission over.
func (c *Cache) SetLast(ctx context.Context, studentID string, event tracking.LocationEvent) {
	if c == nil || c.redis == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, lastLocationKey(studentID), data, c.lastTTL).Err(); err != nil {
		log.Printf("live: caching last location for %s failed: %v", studentID, err)
	}
}

// GetLast returns the cached newest sample; false when nothing fresh exists.
func (c *Cache) GetLast(ctx context.Context, studentID string) (tracking.LocationEvent, bool, error) {
	if c == nil || c.redis == nil {
		return tracking.LocationEvent{}, false, nil
	}
	value, err := c.redis.Get(ctx, lastLocationKey(studentID)).Result()
	if err == redis.Nil {
		return tracking.LocationEvent{}, false, nil
	}
	if err != nil {
		return tracking.LocationEvent{}, false, err
	}
	var event tracking.LocationEvent
	if err := json.Unmarshal([]byte(value), &event); err != nil {
		return tracking.LocationEvent{}, false, err
	}
	return event, true, nil
}
