package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/consumer"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/handler"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/middleware"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/sweeper"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/worker"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/cache"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/database"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/logger"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/rabbitmq"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reservation engine: HTTP API, catalog consumer, offer worker, and sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			log := logger.New(cfg.Env, cfg.LogLevel)
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			db, err := database.NewPostgresDB(cfg)
			if err != nil {
				return err
			}
			store := repository.NewGormStore(db)

			publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, log)
			if err != nil {
				return err
			}
			defer publisher.Close()

			mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, log)
			if err != nil {
				return err
			}
			defer mqConsumer.Close()

			redisClient, err := cache.NewClient(cfg)
			if err != nil {
				return err
			}
			defer redisClient.Close()
			schedules := cache.NewScheduleCache(redisClient)

			tasks := worker.NewClient(cfg)
			defer tasks.Close()

			// Services. Freed capacity flows from the reservation side to
			// the waitlist through the capacity listener.
			reservations := service.NewReservationService(store, publisher, schedules, log)
			waitlist := service.NewWaitlistService(store, publisher, tasks, schedules, cfg.OfferWindow, log)
			reservations.SetCapacityListener(waitlist)

			// Resource catalog consumer.
			msgs, err := mqConsumer.Consume()
			if err != nil {
				return err
			}
			consumer.NewResourceConsumer(store, schedules, log).Start(msgs)

			// Delayed-task worker for offer expiry timers.
			taskServer := worker.NewServer(cfg, waitlist, log)
			go func() {
				if err := taskServer.Run(); err != nil {
					log.Error("task worker stopped", zap.Error(err))
				}
			}()
			defer taskServer.Shutdown()

			// Expiration sweeper.
			sw := sweeper.New(reservations, waitlist, cfg.SweepInterval, log)
			go func() {
				if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("sweeper stopped", zap.Error(err))
				}
			}()

			// HTTP API.
			e := echo.New()
			e.HideBanner = true
			e.HTTPErrorHandler = middleware.ErrorHandler
			e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
				LogStatus: true,
				LogURI:    true,
				LogMethod: true,
				LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
					log.Info("request",
						zap.String("method", v.Method),
						zap.String("uri", v.URI),
						zap.Int("status", v.Status),
					)
					return nil
				},
			}))
			e.Use(echoMw.Recover())

			e.GET("/health", func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "reservation-engine"})
			})

			handler.NewReservationHandler(reservations).RegisterRoutes(e)
			handler.NewWaitlistHandler(waitlist).RegisterRoutes(e)
			handler.NewResourceHandler(reservations).RegisterRoutes(e)

			go func() {
				log.Info("reservation engine starting", zap.String("port", cfg.ServerPort))
				if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
					cancel()
				}
			}()

			<-ctx.Done()
			log.Info("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}
