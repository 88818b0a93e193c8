package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "w3vault:events"

// RedisSink publishes envelopes to a Redis channel from a background
// goroutine. Publish only enqueues.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	log     *logrus.Entry
	q       *Queue
	done    chan struct{}
}

// RedisOption configures a RedisSink or RedisSource.
type RedisOption func(*redisOptions)

type redisOptions struct {
	log     *logrus.Entry
	timeout time.Duration
}

// WithRedisLogger sets the logger used for transport failures.
func WithRedisLogger(l *logrus.Entry) RedisOption {
	return func(o *redisOptions) { o.log = l }
}

// WithPublishTimeout bounds each PUBLISH round trip.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) { o.timeout = d }
}

func buildRedisOptions(opts []RedisOption) redisOptions {
	o := redisOptions{
		log:     logrus.NewEntry(logrus.StandardLogger()),
		timeout: 5 * time.Second,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NewRedisSink starts a sink publishing to channel.
func NewRedisSink(client *redis.Client, channel string, opts ...RedisOption) *RedisSink {
	o := buildRedisOptions(opts)
	if channel == "" {
		channel = DefaultChannel
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		timeout: o.timeout,
		log:     o.log.WithField("channel", channel),
		q:       NewQueue(),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish enqueues env for delivery.
func (s *RedisSink) Publish(env Envelope) { s.q.Publish(env) }

// Close flushes pending envelopes and stops the sink.
func (s *RedisSink) Close() {
	s.q.Close()
	<-s.done
}

func (s *RedisSink) run() {
	defer close(s.done)
	for env := range s.q.C() {
		data, err := Encode(env)
		if err != nil {
			s.log.WithError(err).WithField("seq", env.Seq).Error("encode event")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.client.Publish(ctx, s.channel, data).Err()
		cancel()
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"seq":  env.Seq,
				"kind": env.Kind(),
			}).Warn("publish event")
		}
	}
}

// RedisSource subscribes to a channel fed by a RedisSink.
type RedisSource struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
}

// NewRedisSource creates a source reading channel.
func NewRedisSource(client *redis.Client, channel string, opts ...RedisOption) *RedisSource {
	o := buildRedisOptions(opts)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{client: client, channel: channel, log: o.log.WithField("channel", channel)}
}

// Stream subscribes and returns decoded envelopes until ctx is cancelled.
// The subscription is confirmed before Stream returns, so envelopes
// published afterwards are not missed. Undecodable messages are logged and
// skipped.
func (s *RedisSource) Stream(ctx context.Context) (<-chan Envelope, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				env, err := Decode([]byte(msg.Payload))
				if err != nil {
					s.log.WithError(err).Warn("drop undecodable event")
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
