package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
)

const TypeOfferExpire = "offer:expire"

// OfferExpirePayload identifies the waitlist entry whose offer deadline the
// task fires at.
type OfferExpirePayload struct {
	EntryID uint `json:"entry_id"`
}

func NewOfferExpireTask(entryID uint, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(OfferExpirePayload{EntryID: entryID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeOfferExpire, b)
	opts := []asynq.Option{asynq.ProcessAt(fireAt), asynq.MaxRetry(3)}
	return task, opts, nil
}

// Client enqueues delayed engine tasks. It satisfies the waitlist service's
// OfferScheduler so each granted offer gets an expiry timer precise to its
// deadline instead of waiting for the next sweep.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	})}
}

func (c *Client) ScheduleOfferExpiry(entryID uint, at time.Time) error {
	task, opts, err := NewOfferExpireTask(entryID, at)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task, opts...)
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
