package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

// Server consumes the delayed tasks the engine enqueues for itself.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(cfg *config.Config, waitlist service.WaitlistService, logger *zap.Logger) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisQueueDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOfferExpire, handleOfferExpire(waitlist, logger))

	return &Server{srv: srv, mux: mux}
}

// Run blocks until Shutdown is called.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

func handleOfferExpire(waitlist service.WaitlistService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p OfferExpirePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			// A payload that never parses will never parse on retry either.
			return fmt.Errorf("offer expiry payload: %v: %w", err, asynq.SkipRetry)
		}

		done, err := waitlist.ExpireOffer(ctx, p.EntryID, time.Now())
		if err != nil {
			if errors.Is(err, service.ErrWaitlistEntryNotFound) {
				return nil
			}
			return err
		}
		if done {
			logger.Info("offer expired by timer", zap.Uint("entry_id", p.EntryID))
		}
		return nil
	}
}
