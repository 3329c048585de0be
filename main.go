package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"fleetwatch/statusclient/internal/client"
	"fleetwatch/statusclient/internal/config"
	"fleetwatch/statusclient/internal/events"
	"fleetwatch/statusclient/internal/logging"
	"fleetwatch/statusclient/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.URL == "" {
		log.Fatalf("FLEET_WS_URL must be set")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	//1.- Everything is explicitly constructed and injected; no shared singleton.
	store := state.NewStore(logger, state.WithExcludedServerID(cfg.ExcludedServerID))
	bus := events.NewBus()
	engine := client.New(cfg, store, bus, logger)

	sub, err := bus.Subscribe(64)
	if err != nil {
		logger.Fatal("subscribe to event bus", logging.Error(err))
	}
	go observe(logger, store, sub)

	if err := engine.Connect(); err != nil {
		logger.Warn("initial connection failed, retrying in background", logging.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	engine.Close()
	sub.Close()
}

// observe logs a compact summary for every domain event the engine emits.
func observe(logger *logging.Logger, store *state.Store, sub *events.Subscription) {
	for envelope := range sub.Events() {
		switch envelope.Kind {
		case events.KindConnected:
			logger.Info("channel connected")
		case events.KindDisconnected:
			logger.Info("channel disconnected",
				logging.Int("code", envelope.Disconnected.Code),
				logging.String("reason", envelope.Disconnected.Reason))
		case events.KindReconnecting:
			logger.Info("reconnect scheduled",
				logging.Int("attempt", envelope.Reconnecting.Attempt),
				logging.Duration("delay", envelope.Reconnecting.Delay))
		case events.KindConnectionFailed:
			logger.Error("connection failed permanently",
				logging.Int("total_attempts", envelope.ConnectionFailed.TotalAttempts))
		case events.KindFullUpdate:
			stats := store.Stats()
			logger.Info("fleet baselined",
				logging.Int("servers", envelope.FullUpdate.ServerCount),
				logging.Int("players", stats.TotalPlayers),
				logging.Int("online_servers", stats.OnlineServerCount),
				logging.Int64("max_uptime_s", stats.MaxUptimeSeconds))
		case events.KindMaintenanceUpdate:
			logger.Info("maintenance flag changed",
				logging.Bool("active", envelope.MaintenanceUpdate.Active))
		case events.KindServerUpdate:
			logger.Debug("server delta applied",
				logging.Int("servers", len(envelope.ServerUpdate.ServerIDs)))
		case events.KindPlayerAdd:
			logger.Debug("player joined",
				logging.String("player", envelope.PlayerAdd.UUID),
				logging.String("server", envelope.PlayerAdd.ServerID))
		case events.KindPlayerRemove:
			logger.Debug("player left",
				logging.String("player", envelope.PlayerRemove.UUID),
				logging.Bool("resolved", envelope.PlayerRemove.Resolved))
		case events.KindPlayerMove:
			logger.Debug("player moved",
				logging.String("player", envelope.PlayerMove.UUID),
				logging.String("from", envelope.PlayerMove.From),
				logging.String("to", envelope.PlayerMove.To))
		case events.KindPlayerUpdate:
			logger.Debug("total players reported",
				logging.Int("players", envelope.PlayerUpdate.TotalPlayers))
		}
	}
}
