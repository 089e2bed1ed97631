package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cinevideo/api/internal/client"
	"github.com/cinevideo/api/internal/config"
	"github.com/cinevideo/api/internal/engine"
	"github.com/cinevideo/api/internal/handler"
	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/middleware"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/queue"
	"github.com/cinevideo/api/internal/server"
	"github.com/cinevideo/api/internal/service"
	"github.com/cinevideo/api/internal/store"
	"github.com/cinevideo/api/internal/worker"
	ws "github.com/cinevideo/api/internal/websocket"
)

const serviceName = "Remotion Pro Video Service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("production", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Render.RendersDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Render.RendersDir).Msg("failed to create renders dir")
	}

	// Redis is optional; it backs the rate limiter, the redis store and asynq
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis not available")
		}
	}

	jobStore, closeStore, err := newStore(ctx, cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize job store")
	}
	defer closeStore()

	renderer, err := engine.New(cfg.Render, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize render engine")
	}

	hub := ws.NewHub(log)

	opts := []queue.Option{queue.WithLogger(log), queue.WithNotifier(hub)}
	if pubs := newPublishers(ctx, cfg, log); len(pubs) > 0 {
		opts = append(opts, queue.WithPublisher(pubs))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var dispatcher queue.Dispatcher
	switch cfg.Queue.Dispatcher {
	case config.DispatcherAsynq:
		d := queue.NewAsynqDispatcher(redisOpt, cfg.Queue.AsynqQueue)
		defer d.Close()
		dispatcher = d
	default:
		dispatcher = queue.NewLocalDispatcher()
	}

	q := queue.New(queue.Config{
		RendersDir:    cfg.Render.RendersDir,
		PublicURL:     cfg.Server.PublicURL,
		CompositionID: cfg.Render.CompositionID,
		Codec:         cfg.Render.Codec,
	}, jobStore, dispatcher, renderer, opts...)

	renderService := service.NewRenderService(q, model.NewValidator(), log)

	rateLimit := middleware.NewRateLimiter(redisClient).RenderLimit(cfg.RateLimit.RenderPerHour)
	if cfg.JWT.Secret == "" {
		log.Info().Msg("jwt.secret not set, render endpoints are open")
	}

	app := server.New(server.Options{
		Render:      handler.NewRenderHandler(renderService, log),
		Health:      handler.NewHealthHandler(serviceName, renderer.Name()),
		Assets:      handler.NewAssetHandler(service.NewAssetService(cfg.Render.AssetsDir, cfg.Server.PublicURL), log),
		Hub:         hub,
		Auth:        middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate(),
		RateLimit:   rateLimit,
		RendersDir:  cfg.Render.RendersDir,
		AssetsDir:   cfg.Render.AssetsDir,
		BodyLimitMB: cfg.Server.BodyLimitMB,
		Logger:      logger.With(log, "http"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return q.Run(gctx) })

	if cfg.Queue.Dispatcher == config.DispatcherAsynq {
		rw := worker.NewRenderWorker(q, log)
		lease := worker.NewLease(redisClient, "cinevideo:"+cfg.Queue.AsynqQueue+":worker", cfg.Queue.WorkerLeaseTTL)
		srv := worker.NewServer(redisOpt, cfg.Queue.AsynqQueue, cfg.Server.LogLevel, rw, lease, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info().
			Str("addr", addr).
			Str("engine", renderer.Name()).
			Str("dispatcher", cfg.Queue.Dispatcher).
			Str("store", cfg.Queue.Store).
			Msg("server starting")
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func newStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (store.JobStore, func(), error) {
	switch cfg.Queue.Store {
	case config.StoreRedis:
		return store.NewRedis(redisClient, cfg.Queue.StoreTTL), func() {}, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func newPublishers(ctx context.Context, cfg *config.Config, log zerolog.Logger) client.Publishers {
	var pubs client.Publishers
	if cfg.R2.Enabled() {
		p, err := client.NewS3Publisher(ctx, &cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("object storage publisher not initialized")
		} else {
			pubs = append(pubs, p)
		}
	}
	if cfg.GDrive.Enabled() {
		p, err := client.NewDrivePublisher(ctx, &cfg.GDrive)
		if err != nil {
			log.Warn().Err(err).Msg("google drive publisher not initialized")
		} else {
			pubs = append(pubs, p)
		}
	}
	return pubs
}
