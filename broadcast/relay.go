package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/dominoserver/logger"
)

const DefaultChannel = "game-events"

// DefaultPublishTimeout bounds how long a room loop waits on Redis.
const DefaultPublishTimeout = 500 * time.Millisecond

const (
	targetUser  = "user"
	targetRoom  = "room"
	targetLobby = "lobby"
)

// envelope is what travels over the pub/sub channel.
type envelope struct {
	Origin  string          `json:"origin"`
	Target  string          `json:"target"`
	Room    string          `json:"room,omitempty"`
	Users   []string        `json:"users,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans messages out to every server process subscribed to the
// channel. Each process delivers to its own sessions, including the origin,
// which delivers immediately without waiting for the round trip.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	serverID string
	local    Broadcaster
	timeout  time.Duration

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRelay(client *redis.Client, channel, serverID string, local Broadcaster) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:   client,
		channel:  channel,
		serverID: serverID,
		local:    local,
		timeout:  DefaultPublishTimeout,
	}
}

// Start subscribes and delivers remote envelopes until ctx ends or Close.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.deliver([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Close unsubscribes and waits for the delivery loop to exit.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

// SendToUser, BroadcastToRoom and BroadcastToLobby deliver to this
// process's sessions before publishing. A failed publish is logged only;
// local players keep receiving while Redis is unreachable.
func (r *RedisRelay) SendToUser(roomName, userID string, msg any) error {
	err := r.local.SendToUser(roomName, userID, msg)
	if errors.Is(err, ErrUserNotConnected) {
		err = nil
	}
	r.publish(envelope{Target: targetUser, Room: roomName, Users: []string{userID}}, msg)
	return err
}

func (r *RedisRelay) BroadcastToRoom(roomName string, userIDs []string, msg any) error {
	err := r.local.BroadcastToRoom(roomName, userIDs, msg)
	r.publish(envelope{Target: targetRoom, Room: roomName, Users: userIDs}, msg)
	return err
}

func (r *RedisRelay) BroadcastToLobby(msg any) error {
	err := r.local.BroadcastToLobby(msg)
	r.publish(envelope{Target: targetLobby}, msg)
	return err
}

// publish 在 r.timeout 内发布, 失败只记录日志
func (r *RedisRelay) publish(env envelope, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Warnf("relay could not encode %T: %v", msg, err)
		return
	}
	env.Origin = r.serverID
	env.Payload = payload
	data, err := json.Marshal(env)
	if err != nil {
		logger.Log.Warnf("relay could not encode envelope: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		logger.Log.Warnf("relay publish on %s failed: %v", r.channel, err)
	}
}

func (r *RedisRelay) deliver(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Log.Warnf("relay dropped malformed envelope: %v", err)
		return
	}
	if env.Origin == r.serverID {
		return
	}

	switch env.Target {
	case targetUser:
		for _, id := range env.Users {
			_ = r.local.SendToUser(env.Room, id, env.Payload)
		}
	case targetRoom:
		_ = r.local.BroadcastToRoom(env.Room, env.Users, env.Payload)
	case targetLobby:
		_ = r.local.BroadcastToLobby(env.Payload)
	default:
		logger.Log.Warnf("relay dropped envelope with target %q from %s", env.Target, env.Origin)
	}
}
