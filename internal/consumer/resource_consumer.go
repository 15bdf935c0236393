package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/cache"
)

// ResourceMessage is the catalog service's resource snapshot. Every
// resource.* message carries the full current state, so applying one is
// always an upsert, never a diff.
type ResourceMessage struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	Timezone         string `json:"timezone"`
	Available        bool   `json:"available"`
	RequiresApproval bool   `json:"requires_approval"`
	Hours            []struct {
		Weekday     int `json:"weekday"`
		OpenMinute  int `json:"open_minute"`
		CloseMinute int `json:"close_minute"`
	} `json:"hours"`
	Blackouts []struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	} `json:"blackouts"`
}

// ResourceConsumer mirrors the external resource catalog into the engine's
// store. The engine only ever reads resources; this is the sole writer.
type ResourceConsumer struct {
	store     repository.Store
	schedules *cache.ScheduleCache
	logger    *zap.Logger
}

func NewResourceConsumer(store repository.Store, schedules *cache.ScheduleCache, logger *zap.Logger) *ResourceConsumer {
	return &ResourceConsumer{store: store, schedules: schedules, logger: logger}
}

// Start drains deliveries until the channel closes.
func (c *ResourceConsumer) Start(msgs <-chan amqp.Delivery) {
	go func() {
		for msg := range msgs {
			c.handleMessage(msg)
		}
		c.logger.Info("resource consumer stopped, channel closed")
	}()
}

func (c *ResourceConsumer) handleMessage(msg amqp.Delivery) {
	ctx := context.Background()

	var payload ResourceMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.Error("dropping unparseable resource message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err))
		msg.Nack(false, false)
		return
	}

	var err error
	if msg.RoutingKey == "resource.deleted" {
		err = c.retire(ctx, payload.ID)
	} else {
		err = c.store.SyncResource(ctx, toModel(&payload))
	}
	if err != nil {
		c.logger.Error("resource sync failed, requeueing",
			zap.Uint("resource_id", payload.ID),
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err))
		msg.Nack(false, true)
		return
	}

	if c.schedules != nil {
		c.schedules.InvalidateResource(ctx, payload.ID)
	}
	c.logger.Info("resource synced",
		zap.Uint("resource_id", payload.ID),
		zap.String("routing_key", msg.RoutingKey))
	msg.Ack(false)
}

// retire marks a deleted catalog resource unavailable. The row stays so
// existing reservations keep their reference data.
func (c *ResourceConsumer) retire(ctx context.Context, id uint) error {
	res, err := c.store.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	res.Available = false
	return c.store.SyncResource(ctx, res)
}

func toModel(p *ResourceMessage) *models.Resource {
	res := &models.Resource{
		ID:               p.ID,
		Name:             p.Name,
		Timezone:         p.Timezone,
		Available:        p.Available,
		RequiresApproval: p.RequiresApproval,
	}
	for _, h := range p.Hours {
		res.Hours = append(res.Hours, models.BusinessHours{
			ResourceID:  p.ID,
			Weekday:     h.Weekday,
			OpenMinute:  h.OpenMinute,
			CloseMinute: h.CloseMinute,
		})
	}
	for _, b := range p.Blackouts {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			continue
		}
		res.Blackouts = append(res.Blackouts, models.BlackoutDate{
			ResourceID: p.ID,
			Date:       date,
			Reason:     b.Reason,
		})
	}
	return res
}
