// Package commands contains the hspbot CLI commands.
package commands

import (
	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/booking/events"
	"github.com/hspbot/hspbot/booking/schedule"
	"github.com/hspbot/hspbot/config"
	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/hsp"
	"github.com/hspbot/hspbot/internal/httpclient"
	"github.com/hspbot/hspbot/logger"
)

// app bundles the wired collaborators every command needs
type app struct {
	cfg       *config.Config
	auth      *auth.Manager
	api       *hsp.Client
	store     *schedule.Store
	scheduler *schedule.Scheduler
	events    *events.Broadcaster
}

// buildApp loads configuration and wires the component graph
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	client := httpclient.New(cfg.HTTPTimeout())
	authStore := auth.NewStore(cfg.Data.Dir)
	authManager := auth.NewManager(authStore, cfg.API.BaseURL, client, logger.Logger)
	apiClient := hsp.NewClient(cfg.API.BaseURL, client, cfg.Booking.MaxRequestsPerSecond, logger.Logger)

	broadcaster := events.NewBroadcaster(logger.Logger)
	store := schedule.NewStore(cfg.Data.Dir)
	executor := schedule.NewExecutor(authManager, apiClient, store, broadcaster, schedule.NewClock(), cfg.PollInterval(), logger.Logger)
	scheduler := schedule.NewScheduler(store, executor, broadcaster, schedule.NewClock(), cfg.OpenOffset(), logger.Logger)

	return &app{
		cfg:       cfg,
		auth:      authManager,
		api:       apiClient,
		store:     store,
		scheduler: scheduler,
		events:    broadcaster,
	}, nil
}
