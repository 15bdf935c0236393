package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/sweeper"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/database"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/logger"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/rabbitmq"
)

// The sweep command runs the expiration sweeper without the HTTP API, for
// deployments that keep the sweeper on a separate schedule or want a manual
// catch-up pass after downtime.
func newSweepCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire elapsed reservations and stale waitlist offers",
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

			// No offer timers or schedule cache here: expired offers hand
			// capacity to the next entrant, whose own expiry the periodic
			// sweep covers.
			reservations := service.NewReservationService(store, publisher, nil, log)
			waitlist := service.NewWaitlistService(store, publisher, nil, nil, cfg.OfferWindow, log)
			reservations.SetCapacityListener(waitlist)

			sw := sweeper.New(reservations, waitlist, cfg.SweepInterval, log)
			if once {
				sw.Tick(ctx)
				return nil
			}
			return sw.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}
