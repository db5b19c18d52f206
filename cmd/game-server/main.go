package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gridstakes/internal/arena"
	"gridstakes/internal/config"
	"gridstakes/internal/leaderboard"
	"gridstakes/internal/ledger"
	"gridstakes/internal/logging"
	"gridstakes/internal/progression"
	"gridstakes/internal/store"
	"gridstakes/internal/ws"
)

func main() {
	_ = godotenv.Load()

	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}
	gameCfg, err := config.LoadGame()
	if err != nil {
		log.Fatal().Err(err).Msg("load game config failed")
	}

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	seedUser(st, cfg.SeedUserName, cfg.SeedUserToken, cfg.SeedBalance)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	lb := leaderboard.New(rdb)

	quests, err := progression.LoadQuests(cfg.QuestConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.QuestConfigPath).Msg("load quests failed")
	}

	led := ledger.New(st)
	orch := arena.New(st, led, gameCfg)
	orch.SetLeaderboard(lb)
	orch.SetQuests(quests)

	gateway := ws.NewGateway(orch, st)
	orch.SetBroadcaster(gateway)
	orch.StartJanitor(context.Background(), gameCfg.SweepInterval())

	r := newRouter(st, lb, orch, gateway)
	logRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}

func seedUser(st *store.Store, name, token string, balance int64) {
	if name == "" || token == "" {
		return
	}
	if _, err := st.GetUserByToken(context.Background(), token); err == nil {
		return
	}
	id, err := st.CreateUser(context.Background(), name, token, balance)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("seed user failed")
		return
	}
	log.Info().Str("user_id", id).Str("name", name).Msg("seeded user")
}
