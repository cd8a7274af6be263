package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/salesdock/automation/internal/models"
)

const (
	// DefaultQueueKey is the redis list execution workers BRPOP from.
	DefaultQueueKey = "automation:dispatch"
	// DefaultChannel is the pub/sub channel that wakes idle workers.
	DefaultChannel = "automation:dispatch:notify"

	publishTimeout = 5 * time.Second
)

// Publisher delivers dispatch events to the execution worker.
type Publisher interface {
	PublishDispatch(ctx context.Context, run *models.WorkflowRun) error
}

// dispatchEvent is the wire form of one dispatch notification.
type dispatchEvent struct {
	RunID          uint64             `json:"run_id"`
	RuleID         uint64             `json:"rule_id"`
	TenantID       uint64             `json:"tenant_id"`
	TriggerKind    models.TriggerKind `json:"trigger_kind"`
	TriggerEventID string             `json:"trigger_event_id"`
	DispatchedAt   time.Time          `json:"dispatched_at"`
}

// RedisPublisher pushes dispatch events onto a redis work queue.
type RedisPublisher struct {
	client   *redis.Client
	queueKey string
	channel  string
}

// NewRedisPublisher constructs a publisher for the given redis address.
func NewRedisPublisher(addr string) *RedisPublisher {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	return &RedisPublisher{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		queueKey: DefaultQueueKey,
		channel:  DefaultChannel,
	}
}

// PublishDispatch enqueues the run and fires a wake-up notification. The
// queue push is the delivery mechanism; the pub/sub message is best-effort.
func (p *RedisPublisher) PublishDispatch(ctx context.Context, run *models.WorkflowRun) error {
	if p == nil || p.client == nil {
		return errors.New("dispatch: redis publisher not initialized")
	}
	if run == nil {
		return errors.New("dispatch: nil run")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, errMarshal := json.Marshal(dispatchEvent{
		RunID:          run.ID,
		RuleID:         run.RuleID,
		TenantID:       run.TenantID,
		TriggerKind:    run.TriggerKind,
		TriggerEventID: run.TriggerEventID,
		DispatchedAt:   time.Now().UTC(),
	})
	if errMarshal != nil {
		return errMarshal
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if errPush := p.client.LPush(pubCtx, p.queueKey, payload).Err(); errPush != nil {
		return errPush
	}
	_ = p.client.Publish(pubCtx, p.channel, payload).Err()
	return nil
}

// Close releases the underlying redis connection.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
