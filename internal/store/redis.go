package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// RedisStore is the Redis-backed checkpoint store. Each checkpoint is a hash;
// a per-session ZSET orders checkpoints by sequence, and a per-session
// counter allocates sequence numbers atomically. Every successful Put
// publishes the full checkpoint to the namespace's checkpoint_events channel
// for read-only observers.
//
// The store is thread-safe and can be used concurrently from multiple
// goroutines; writes for distinct sessions contend only on their own keys.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a checkpoint store for the given namespace.
// Returns an error if the namespace is empty.
func NewRedisStore(redisOpts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Verify checks Redis connectivity and performs a writability probe. The
// process must not accept session traffic while this fails: the suspension
// protocol depends on durable checkpoints.
func (s *RedisStore) Verify(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not reachable: %w", err)
	}

	probe := writeProbeKey(s.namespace)
	if err := s.rdb.Set(ctx, probe, time.Now().UnixMilli(), time.Minute).Err(); err != nil {
		return fmt.Errorf("redis not writable: %w", err)
	}
	if err := s.rdb.Del(ctx, probe).Err(); err != nil {
		return fmt.Errorf("redis not writable: %w", err)
	}

	return nil
}

// Put appends a checkpoint for the state's session. The sequence number is
// allocated with INCR on a per-session counter, so concurrent writers for
// distinct sessions never contend and writers for the same session are
// strictly ordered.
func (s *RedisStore) Put(ctx context.Context, state *blackboard.State) (*Checkpoint, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}

	sequence, err := s.rdb.Incr(ctx, sessionSequenceKey(s.namespace, state.SessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	cp := &Checkpoint{
		SessionID:    state.SessionID,
		CheckpointID: uuid.New().String(),
		Sequence:     sequence,
		CreatedAtMs:  time.Now().UnixMilli(),
		State:        state.Clone(),
	}

	hash, err := checkpointToHash(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	key := checkpointKey(s.namespace, cp.SessionID, cp.CheckpointID)
	if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint to Redis: %w", err)
	}

	z := redis.Z{Score: float64(cp.Sequence), Member: cp.CheckpointID}
	if err := s.rdb.ZAdd(ctx, sessionIndexKey(s.namespace, cp.SessionID), z).Err(); err != nil {
		return nil, fmt.Errorf("failed to index checkpoint: %w", err)
	}

	// Publish the full checkpoint for observers. Best-effort delivery is
	// fine here: the hash write above is the durable record.
	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint for event: %w", err)
	}
	if err := s.rdb.Publish(ctx, CheckpointEventsChannel(s.namespace), cpJSON).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish checkpoint event: %w", err)
	}

	return cp, nil
}

// GetLatest retrieves the highest-sequence checkpoint for a session.
func (s *RedisStore) GetLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, sessionIndexKey(s.namespace, sessionID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}

	if len(results) == 0 {
		return nil, ErrNotFound
	}

	checkpointID, ok := results[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("%w: malformed index member", ErrCorrupt)
	}

	return s.Get(ctx, sessionID, checkpointID)
}

// Get retrieves one checkpoint by ID.
func (s *RedisStore) Get(ctx context.Context, sessionID, checkpointID string) (*Checkpoint, error) {
	key := checkpointKey(s.namespace, sessionID, checkpointID)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, ErrNotFound
	}

	cp, err := hashToCheckpoint(hashData)
	if err != nil {
		return nil, err
	}

	return cp, nil
}

// List returns the session's checkpoint IDs in sequence order.
func (s *RedisStore) List(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, sessionIndexKey(s.namespace, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return ids, nil
}

// RecordFailure attaches a stage failure message to the session's status.
func (s *RedisStore) RecordFailure(ctx context.Context, sessionID, message string) error {
	if err := s.rdb.Set(ctx, sessionFailureKey(s.namespace, sessionID), message, 0).Err(); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// LastFailure returns the session's most recent failure message, or "".
func (s *RedisStore) LastFailure(ctx context.Context, sessionID string) (string, error) {
	msg, err := s.rdb.Get(ctx, sessionFailureKey(s.namespace, sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read failure record: %w", err)
	}
	return msg, nil
}

// CheckpointSubscription is an active Pub/Sub subscription to checkpoint
// events. Caller must call Close() when done.
type CheckpointSubscription struct {
	events <-chan *Checkpoint
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of checkpoint events. The channel is closed
// when the subscription is closed or the context is cancelled.
func (s *CheckpointSubscription) Events() <-chan *Checkpoint {
	return s.events
}

// Errors returns the channel of subscription errors. Errors are non-fatal;
// the subscription continues and the offending message is skipped.
func (s *CheckpointSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *CheckpointSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeCheckpointEvents subscribes to checkpoint events for this
// namespace. Observation is read-only: consuming events never mutates state
// or triggers stage execution.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once, so a slow observer may miss events; the store itself remains
// the source of truth.
func (s *RedisStore) SubscribeCheckpointEvents(ctx context.Context) (*CheckpointSubscription, error) {
	pubsub := s.rdb.Subscribe(ctx, CheckpointEventsChannel(s.namespace))

	eventsChan := make(chan *Checkpoint, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var cp Checkpoint
				if err := json.Unmarshal([]byte(msg.Payload), &cp); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal checkpoint event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &cp:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &CheckpointSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
