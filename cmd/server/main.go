package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"chatroom-server/internal/chatroom"
	"chatroom-server/internal/config"
	"chatroom-server/internal/db"
	"chatroom-server/internal/handlers"
	"chatroom-server/internal/metrics"
	"chatroom-server/internal/middleware"
	"chatroom-server/internal/relay"
	"chatroom-server/internal/user"
	"chatroom-server/internal/websocket"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 15 * time.Second

var (
	NoCache    = middleware.CacheControl(0, "no-cache")
	Cache30Sec = middleware.CacheControl(30*time.Second, "private")
	Cache1Min  = middleware.CacheControl(1*time.Minute, "private")
)

func publicRoute(mux *http.ServeMux, path string, rateLimit *middleware.RateLimitStore, cacheMiddleware func(http.HandlerFunc) http.HandlerFunc, handler http.HandlerFunc) {
	mux.HandleFunc(path, middleware.TrackOutboundData(path, middleware.RateLimitFunc(rateLimit)(cacheMiddleware(handler))))
}

// authRoute limits by IP until the caller is authenticated, then by user.
func authRoute(mux *http.ServeMux, path string, rateLimit *middleware.RateLimitStore, cacheMiddleware func(http.HandlerFunc) http.HandlerFunc, handler http.HandlerFunc) {
	perUser := middleware.RequireAuth(middleware.RateLimitFunc(rateLimit)(cacheMiddleware(handler)))
	mux.HandleFunc(path, middleware.TrackOutboundData(path, middleware.RateLimitFunc(middleware.AuthRateLimit)(perUser)))
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	setupLogging(cfg.Log)

	if err := db.Init(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("DB init failed")
	}

	var models []interface{}
	models = append(models, user.Models()...)
	models = append(models, chatroom.Models()...)
	models = append(models, metrics.Models()...)
	if err := db.DB.AutoMigrate(models...); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	users := user.NewService(db.DB)
	rooms := chatroom.NewService(db.DB, nil, chatroom.Options{
		MaxReplyDepth:    cfg.Chat.MaxReplyDepth,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(rooms, websocket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		BroadcastQueue: cfg.WebSocket.BroadcastQueue,
	})
	websocket.GlobalHub = hub
	go hub.Run(ctx)

	var redisRelay *relay.RedisRelay
	if cfg.Redis.URL != "" {
		redisRelay, err = relay.New(ctx, cfg.Redis.URL, cfg.Redis.Channel, hub, cfg.WebSocket.BroadcastQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		go redisRelay.Run(ctx)
		rooms.SetPublisher(redisRelay)
		log.Info().Str("channel", cfg.Redis.Channel).Msg("cross-instance relay enabled")
	} else {
		rooms.SetPublisher(hub)
	}

	metricsService := metrics.NewService(db.DB, hub.ConnectedClients)
	metricsService.Start()

	middleware.Users = users
	handlers.Users = users
	handlers.Rooms = rooms
	handlers.MetricsService = metricsService
	handlers.DefaultPageSize = cfg.Chat.DefaultPageSize

	cleanupDone := make(chan struct{})
	go middleware.GlobalRateLimit.RunCleanup(5*time.Minute, cleanupDone)
	go middleware.MessageRateLimit.RunCleanup(5*time.Minute, cleanupDone)
	go middleware.AuthRateLimit.RunCleanup(5*time.Minute, cleanupDone)

	mux := http.NewServeMux()

	// Users
	publicRoute(mux, "/users/register", middleware.GlobalRateLimit, NoCache, handlers.RegisterUserHandler)
	authRoute(mux, "/user", middleware.GlobalRateLimit, Cache1Min, handlers.GetUserHandler)
	authRoute(mux, "/users/delete", middleware.GlobalRateLimit, NoCache, handlers.DeleteAccountHandler)
	authRoute(mux, "/users/block", middleware.GlobalRateLimit, NoCache, handlers.BlockUserHandler)
	authRoute(mux, "/users/unblock", middleware.GlobalRateLimit, NoCache, handlers.UnblockUserHandler)
	authRoute(mux, "/users/blocked", middleware.GlobalRateLimit, NoCache, handlers.GetBlockedUsersHandler)
	authRoute(mux, "/users/blocking", middleware.GlobalRateLimit, NoCache, handlers.GetBlockingUsersHandler)

	// Rooms and membership
	authRoute(mux, "/rooms", middleware.GlobalRateLimit, Cache30Sec, handlers.GetRoomsHandler)
	authRoute(mux, "/room", middleware.GlobalRateLimit, Cache30Sec, handlers.GetRoomHandler)
	authRoute(mux, "/rooms/create", middleware.GlobalRateLimit, NoCache, handlers.CreateRoomHandler)
	authRoute(mux, "/rooms/update", middleware.GlobalRateLimit, NoCache, handlers.UpdateRoomHandler)
	authRoute(mux, "/rooms/delete", middleware.GlobalRateLimit, NoCache, handlers.DeleteRoomHandler)
	authRoute(mux, "/rooms/transfer", middleware.GlobalRateLimit, NoCache, handlers.TransferOwnershipHandler)
	authRoute(mux, "/rooms/join", middleware.GlobalRateLimit, NoCache, handlers.JoinRoomHandler)
	authRoute(mux, "/rooms/leave", middleware.GlobalRateLimit, NoCache, handlers.LeaveRoomHandler)
	authRoute(mux, "/rooms/members", middleware.GlobalRateLimit, NoCache, handlers.GetMembersHandler)
	authRoute(mux, "/rooms/members/remove", middleware.GlobalRateLimit, NoCache, handlers.RemoveMemberHandler)

	// Moderation
	authRoute(mux, "/moderation/mute", middleware.GlobalRateLimit, NoCache, handlers.MuteUserHandler)
	authRoute(mux, "/moderation/unmute", middleware.GlobalRateLimit, NoCache, handlers.UnmuteUserHandler)
	authRoute(mux, "/moderation/ban", middleware.GlobalRateLimit, NoCache, handlers.BanUserHandler)
	authRoute(mux, "/moderation/unban", middleware.GlobalRateLimit, NoCache, handlers.UnbanUserHandler)
	authRoute(mux, "/moderation/bans", middleware.GlobalRateLimit, NoCache, handlers.GetBansHandler)

	// Roles
	authRoute(mux, "/roles", middleware.GlobalRateLimit, NoCache, handlers.GetRolesHandler)
	authRoute(mux, "/roles/capabilities", middleware.GlobalRateLimit, NoCache, handlers.GetCapabilitiesHandler)
	authRoute(mux, "/roles/create", middleware.GlobalRateLimit, NoCache, handlers.CreateRoleHandler)
	authRoute(mux, "/roles/update", middleware.GlobalRateLimit, NoCache, handlers.UpdateRoleHandler)
	authRoute(mux, "/roles/delete", middleware.GlobalRateLimit, NoCache, handlers.DeleteRoleHandler)
	authRoute(mux, "/roles/assign", middleware.GlobalRateLimit, NoCache, handlers.AssignRoleHandler)
	authRoute(mux, "/roles/unassign", middleware.GlobalRateLimit, NoCache, handlers.UnassignRoleHandler)

	// Messages with the tighter message bucket on send
	authRoute(mux, "/messages", middleware.GlobalRateLimit, NoCache, handlers.GetMessagesHandler)
	authRoute(mux, "/messages/get", middleware.GlobalRateLimit, NoCache, handlers.GetMessageHandler)
	authRoute(mux, "/messages/replies", middleware.GlobalRateLimit, NoCache, handlers.GetRepliesHandler)
	authRoute(mux, "/messages/send", middleware.MessageRateLimit, NoCache, handlers.SendMessageHandler)
	authRoute(mux, "/messages/edit", middleware.GlobalRateLimit, NoCache, handlers.EditMessageHandler)
	authRoute(mux, "/messages/delete", middleware.GlobalRateLimit, NoCache, handlers.DeleteMessageHandler)

	// Reactions
	authRoute(mux, "/reactions", middleware.GlobalRateLimit, NoCache, handlers.GetReactionsHandler)
	authRoute(mux, "/reactions/summary", middleware.GlobalRateLimit, NoCache, handlers.GetReactionSummaryHandler)
	authRoute(mux, "/reactions/add", middleware.GlobalRateLimit, NoCache, handlers.AddReactionHandler)
	authRoute(mux, "/reactions/remove", middleware.GlobalRateLimit, NoCache, handlers.RemoveReactionHandler)

	// Realtime
	authRoute(mux, "/ws", middleware.GlobalRateLimit, NoCache, hub.ServeWS)

	// Metrics
	mux.Handle("/metrics", promhttp.Handler())
	publicRoute(mux, "/metrics/history", middleware.GlobalRateLimit, NoCache, handlers.GetMetricsHistoryHandler)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("name", cfg.Name).
			Str("addr", cfg.Port).
			Str("url", "http://localhost:"+strings.TrimPrefix(cfg.Port, ":")).
			Msg("chatroom server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"metrics": func(ctx context.Context) error {
				return metricsService.Stop(ctx)
			},
			"realtime": func(ctx context.Context) error {
				close(cleanupDone)
				cancel()
				if redisRelay != nil {
					return redisRelay.Close()
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("chatroom server stopped")
	os.Exit(exitCode)
}
