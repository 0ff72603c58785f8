package channel

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a Layer backed by Redis: group membership is a Redis set per key
// (SADD/SREM), and delivery rides each subscriber's own Pub/Sub channel, the
// same prefix-keyed-client pattern as the teacher's RedisStore.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis builds a Redis-backed channel layer. prefix namespaces keys so
// multiple deployments can share one Redis instance.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "sio:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) groupKey(key string) string      { return r.prefix + "group:" + key }
func (r *Redis) subscriberChan(id string) string { return r.prefix + "sub:" + id }

type redisWireMessage struct {
	Key    string   `json:"key"`
	Data   []byte   `json:"data"`
	Binary [][]byte `json:"binary,omitempty"`
	Skip   string   `json:"skip,omitempty"`
}

type redisSubscription struct {
	r            *Redis
	subscriberID string
	pubsub       *redis.PubSub
	cancel       context.CancelFunc
}

func (s *redisSubscription) Close() error {
	s.cancel()
	return s.pubsub.Close()
}

// Subscribe opens a dedicated Pub/Sub channel for subscriberID and runs a
// receive loop that decodes each published message and invokes deliver.
// The loop exits when the subscription is closed or ctx is cancelled.
func (r *Redis) Subscribe(ctx context.Context, subscriberID string, deliver func(Message)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := r.rdb.Subscribe(subCtx, r.subscriberChan(subscriberID))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		return nil, err
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var wire redisWireMessage
				if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
					continue
				}
				deliver(Message{Key: wire.Key, Data: wire.Data, Binary: wire.Binary, Skip: wire.Skip})
			}
		}
	}()

	return &redisSubscription{r: r, subscriberID: subscriberID, pubsub: pubsub, cancel: cancel}, nil
}

func (r *Redis) GroupAdd(ctx context.Context, key, subscriberID string) error {
	return r.rdb.SAdd(ctx, r.groupKey(key), subscriberID).Err()
}

func (r *Redis) GroupDiscard(ctx context.Context, key, subscriberID string) error {
	return r.rdb.SRem(ctx, r.groupKey(key), subscriberID).Err()
}

// GroupSend fans out msg to every current member's personal channel, via a
// Redis pipeline so publish round trips don't serialize on group size.
func (r *Redis) GroupSend(ctx context.Context, msg Message) error {
	members, err := r.rdb.SMembers(ctx, r.groupKey(msg.Key)).Result()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	payload, err := json.Marshal(redisWireMessage{Key: msg.Key, Data: msg.Data, Binary: msg.Binary, Skip: msg.Skip})
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	for _, member := range members {
		if member == msg.Skip {
			continue
		}
		pipe.Publish(ctx, r.subscriberChan(member), payload)
	}
	_, err = pipe.Exec(ctx)
	return err
}
