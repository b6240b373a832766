package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/repository"
)

// feedCursorKey names the persisted inbound-message cursor.
const feedCursorKey = "feed"

// Driver runs the orchestrator's loops: the inbound message poller, the
// deadline tick poller, and the Redis keyspace fast path for expired
// timers. It is the only component that touches the chat connection.
type Driver struct {
	orch      *Orchestrator
	feed      chat.Feed
	messenger chat.Messenger
	cursors   repository.CursorStore
	rdb       *redis.Client // optional, enables keyspace wakeups

	pollInterval time.Duration
	tickInterval time.Duration
}

// NewDriver creates a Driver. rdb may be nil; the tick poller then carries
// all deadline processing.
func NewDriver(orch *Orchestrator, feed chat.Feed, messenger chat.Messenger, cursors repository.CursorStore, rdb *redis.Client) *Driver {
	if messenger == nil {
		messenger = chat.NoopMessenger{}
	}
	if feed == nil {
		feed = chat.EmptyFeed{}
	}
	return &Driver{
		orch:         orch,
		feed:         feed,
		messenger:    messenger,
		cursors:      cursors,
		rdb:          rdb,
		pollInterval: 5 * time.Second,
		tickInterval: 15 * time.Second,
	}
}

// Run starts all loops and blocks until ctx is canceled.
func (d *Driver) Run(ctx context.Context) {
	if err := d.orch.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("Recovery failed, continuing with tick poller only")
	}
	if d.rdb != nil {
		go d.listenKeyspace(ctx)
	}
	go d.pollDeadlines(ctx)
	d.pollFeed(ctx)
}

// pollFeed drains inbound messages and routes them. The cursor is
// persisted after each page so a restart resumes where it left off;
// the dedup cache absorbs any overlap.
func (d *Driver) pollFeed(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	cursor, err := d.cursors.Get(ctx, feedCursorKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load feed cursor, starting fresh")
	}
	log.Info().Str("cursor", cursor).Msg("Feed poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Feed poller stopped")
			return
		case <-ticker.C:
			cursor = d.drainFeed(ctx, cursor)
		}
	}
}

func (d *Driver) drainFeed(ctx context.Context, cursor string) string {
	msgs, next, err := d.feed.Poll(ctx, cursor)
	if err != nil {
		log.Error().Err(err).Msg("Feed poll failed")
		return cursor
	}
	for _, msg := range msgs {
		d.handleMessage(ctx, msg)
	}
	if next != cursor {
		if err := d.cursors.Set(ctx, feedCursorKey, next); err != nil {
			log.Error().Err(err).Msg("Failed to persist feed cursor")
		}
	}
	return next
}

// handleMessage routes one inbound message to the matching grammar.
func (d *Driver) handleMessage(ctx context.Context, msg chat.Message) {
	if d.orch.MarkSeen(msg.ID) {
		log.Debug().Str("messageId", msg.ID).Msg("Duplicate message, skipping")
		return
	}
	var notes []Notification
	if msg.IsDM {
		notes = d.orch.HandlePrivate(ctx, msg)
	} else {
		notes = d.orch.HandlePublic(ctx, msg)
	}
	d.deliver(ctx, notes)
}

// pollDeadlines runs the tick fallback for expired phase deadlines.
func (d *Driver) pollDeadlines(ctx context.Context) {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", d.tickInterval).Msg("Deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Deadline poller stopped")
			return
		case <-ticker.C:
			d.deliver(ctx, d.orch.Tick(ctx))
		}
	}
}

// listenKeyspace subscribes to Redis expiry notifications so phases
// resolve moments after their deadline instead of on the next tick.
func (d *Driver) listenKeyspace(ctx context.Context) {
	pubsub := d.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.handleExpiry(ctx, msg.Payload)
		}
	}
}

// handleExpiry processes an expired key. Only acts on game timer keys.
func (d *Driver) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "game:") || !strings.HasSuffix(key, ":timer") {
		return
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	gameID := parts[1]

	log.Info().Str("gameId", gameID).Msg("Timer expired, processing phase")
	notes, err := d.orch.ProcessPhase(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Phase processing failed after timer expiry")
		return
	}
	d.deliver(ctx, notes)
}

// deliver sends notification intents through the messenger. Delivery
// failures are logged and dropped; game state has already moved on.
func (d *Driver) deliver(ctx context.Context, notes []Notification) {
	mp, canPostMaps := d.messenger.(chat.MapPoster)
	for _, n := range notes {
		var err error
		switch {
		case n.ChannelID != "" && n.SVG != "" && canPostMaps:
			err = mp.ReplyWithMap(ctx, n.ChannelID, n.Text, n.SVG)
		case n.ChannelID != "":
			err = d.messenger.Reply(ctx, n.ChannelID, n.Text)
		case n.Identity != "":
			err = d.messenger.DM(ctx, n.Identity, n.Text)
		}
		if err != nil {
			log.Error().Err(err).Str("channelId", n.ChannelID).
				Str("identity", n.Identity).Msg("Failed to deliver notification")
		}
	}
}
