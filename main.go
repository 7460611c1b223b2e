package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/meiro/config"
	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/monitor"
	"github.com/wfunc/meiro/persistence"
	"github.com/wfunc/meiro/room"
	meiro_rpc "github.com/wfunc/meiro/rpc"
	"github.com/wfunc/meiro/server"
	"github.com/wfunc/meiro/services"
	"github.com/wfunc/meiro/state"
	"github.com/wfunc/meiro/timer"
)

const shutdownTimeout = 10 * time.Second

func openStore(cfg *config.Config) (persistence.Store, error) {
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case config.DriverGorm:
		return persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	return persistence.NewMemoryStore(), nil
}

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Log.Infow("store ready", "driver", cfg.Database.Driver)

	mon := monitor.NewMonitor("meiro")
	metricsServer := mon.StartServer(cfg.Server.MetricsAddress)

	scheduler := timer.NewTimerManager()
	defer scheduler.Stop()

	records := services.NewRecordService(store)

	seed := cfg.Game.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rooms := room.NewRoomManager(room.Options{
		Durations:    state.DefaultDurations(cfg.Game.ExploreDuration),
		LobbyTimeout: cfg.Game.LobbyTimeout,
		MazeAttempts: cfg.Game.MazeAttempts,
		Scheduler:    scheduler,
		Store:        store,
		Records:      records,
		Monitor:      mon,
	}, rand.New(rand.NewSource(seed)))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if _, err := rooms.Restore(ctx, store); err != nil {
		logger.Log.Errorw("restore rooms failed", "error", err)
	}
	cancel()

	rpcServer, err := meiro_rpc.NewServer(cfg.Server.RPCAddress, meiro_rpc.NewGameService(rooms, records))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, rooms)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Log.Infow("shutting down", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Game server failed: %v", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Warnw("http shutdown", "error", err)
	}
	rpcServer.Stop()
	rooms.Shutdown(shutdownTimeout)
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Log.Warnw("metrics shutdown", "error", err)
	}
	logger.Log.Info("bye")
}
