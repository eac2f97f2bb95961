package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/broadcast"
	"github.com/wfunc/dominoserver/config"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/monitor"
	"github.com/wfunc/dominoserver/persistence"
	"github.com/wfunc/dominoserver/room"
	"github.com/wfunc/dominoserver/rpc"
	"github.com/wfunc/dominoserver/server"
	"github.com/wfunc/dominoserver/services"
	"github.com/wfunc/dominoserver/session"
	"github.com/wfunc/dominoserver/timer"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "dominoserver",
		Short:        "Real-time multiplayer domino server",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory holding config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the game server (default)",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the match history tables and exit",
		RunE:  runMigrate,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and initialises the logger.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Log = logger.Log.With("server", cfg.Server.ServerID)
	return cfg, nil
}

// openDatabase 按 driver 打开历史库; gorm 与 postgres 在打开时完成建表
func openDatabase(cfg *config.Config) (persistence.Database, error) {
	switch cfg.Database.Driver {
	case "gorm":
		return persistence.NewGormPostgreSQL(cfg.Database.Postgres.DSN())
	case "postgres":
		return persistence.NewPostgreSQL(cfg.Database.Postgres.DSN())
	default:
		return persistence.NewMemoryDatabase(), nil
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Database.Driver == "memory" {
		logger.Log.Info("Memory database selected, nothing to migrate.")
		return nil
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Log.Infof("Database schema is up to date (driver=%s).", cfg.Database.Driver)
	return db.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Log.Infof("Database connection successful (driver=%s).", cfg.Database.Driver)

	sessions := session.NewManager()
	var broadcaster room.Broadcaster = broadcast.NewSessionBroadcaster(sessions)
	var snapshots persistence.SnapshotStore

	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		relay := broadcast.NewRedisRelay(client, cfg.Redis.Channel, cfg.Server.ServerID, broadcaster)
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start redis relay: %w", err)
		}
		defer relay.Close()
		broadcaster = relay

		store := persistence.NewRedisSnapshotStore(client, cfg.Server.ServerID, cfg.Redis.SnapshotTTL)
		dropStaleSnapshots(ctx, store)
		snapshots = store
		logger.Log.Infof("Redis enabled at %s (channel=%s)", opts.Addr, cfg.Redis.Channel)
	}

	mon := monitor.NewMonitor("domino", nil)
	metricsServer := mon.StartServer(cfg.Server.MetricsAddress)
	logger.Log.Infof("Metrics listening on %s", cfg.Server.MetricsAddress)

	timers := timer.NewTimerManager(50 * time.Millisecond)
	defer timers.Stop()

	history := services.NewHistoryService(db)
	rooms := room.NewRoomManager(room.Deps{
		Broadcaster:  broadcaster,
		Timers:       timers,
		Snapshots:    snapshots,
		Archiver:     history,
		Monitor:      mon,
		Rules:        cfg.Game.Rules(),
		TurnDuration: cfg.Game.TurnDuration,
	})

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}
	if err := rpcServer.Register(rpc.ServiceName, rpc.NewLobbyService(rooms, history)); err != nil {
		return fmt.Errorf("register rpc: %w", err)
	}
	go rpcServer.Start()

	if cfg.Auth.JWTSecret == "" {
		logger.Log.Warn("auth.jwt_secret is empty, every token will be rejected")
	}
	gameServer := server.NewGameServer(server.Options{
		Addr:           cfg.Server.HTTPAddress,
		Authenticator:  auth.NewJWTAuthenticator(cfg.Auth.JWTSecret),
		Rooms:          rooms,
		Sessions:       sessions,
		Monitor:        mon,
		PingInterval:   cfg.Server.PingInterval,
		MaxMissedPongs: cfg.Server.MaxMissedPongs,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	errc := make(chan error, 1)
	go func() { errc <- gameServer.Start() }()

	select {
	case err = <-errc:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := gameServer.Shutdown(shutdownCtx); serr != nil {
		logger.Log.Warnf("Game server shutdown: %v", serr)
	}
	rooms.CloseAll()
	rpcServer.Stop()
	history.Wait()
	if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
		logger.Log.Warnf("Metrics server shutdown: %v", serr)
	}
	logger.Log.Info("Server stopped")
	return err
}

// dropStaleSnapshots 清理本 server_id 上次运行遗留的对局快照, 这些房间已不存在.
// 其他进程的快照不受影响
func dropStaleSnapshots(ctx context.Context, store *persistence.RedisSnapshotStore) {
	stale, err := store.Rooms(ctx)
	if err != nil {
		logger.Log.Warnf("List match snapshots: %v", err)
		return
	}
	for _, name := range stale {
		if err := store.Delete(ctx, name); err != nil {
			logger.Log.Warnf("Delete snapshot for room %s: %v", name, err)
		}
	}
	if len(stale) > 0 {
		logger.Log.Infof("Dropped %d stale match snapshots", len(stale))
	}
}
