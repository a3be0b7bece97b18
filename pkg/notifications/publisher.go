package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inkpress/coord/pkg/redis"
)

// DefaultChannel is the fan-out channel name.
const DefaultChannel = "notifications"

// EventType tags events that carry no notification payload.
type EventType string

const (
	EventMarkRead EventType = "mark_read"
	EventDelete   EventType = "delete"
)

// Event is the fan-out envelope. Exactly one of these shapes is used:
//
//	{userId, notification}
//	{userId, notifications[], isBatch: true}
//	{userId, type: "mark_read", ids}
//	{userId, type: "delete", id}
type Event struct {
	UserID        string         `json:"userId"`
	Notification  *Notification  `json:"notification,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
	IsBatch       bool           `json:"isBatch,omitempty"`
	Type          EventType      `json:"type,omitempty"`
	IDs           []string       `json:"ids,omitempty"`
	ID            string         `json:"id,omitempty"`
}

func CreatedEvent(n Notification) Event {
	return Event{UserID: n.UserID, Notification: &n}
}

func BatchEvent(userID string, notifs []Notification) Event {
	return Event{UserID: userID, Notifications: notifs, IsBatch: true}
}

// MarkReadEvent reports read ids. Empty ids means all.
func MarkReadEvent(userID string, ids []string) Event {
	return Event{UserID: userID, Type: EventMarkRead, IDs: ids}
}

func DeleteEvent(userID, id string) Event {
	return Event{UserID: userID, Type: EventDelete, ID: id}
}

// Publisher fans an event out to connected clients.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// RedisPublisher publishes events as JSON on a pub/sub channel. Without a
// cache client the event goes to the local publisher, which reaches only
// clients connected to this process.
type RedisPublisher struct {
	cache   redis.Provider
	channel string
	local   Publisher
}

// NewRedisPublisher creates a publisher on channel. local may be nil, in
// which case events are dropped while the cache is unavailable.
func NewRedisPublisher(cache redis.Provider, channel string, local Publisher) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{cache: cache, channel: channel, local: local}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	client := p.cache.Get(ctx)
	if client == nil {
		if p.local == nil {
			return nil
		}
		return p.local.Publish(ctx, ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := client.Publish(ctx, p.channel, data).Err(); err != nil {
		return p.cache.Report(ctx, fmt.Errorf("publish event: %w", err))
	}
	return nil
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string { return p.channel }

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }
