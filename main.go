package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lagat/auth"
	"lagat/config"
	"lagat/db"
	"lagat/feed"
	"lagat/gateway"
	"lagat/globals"
	"lagat/home"
	"lagat/imageproxy"
	"lagat/live"
	"lagat/middleware"
	"lagat/mq"
	"lagat/pantry"
	"lagat/ratelim"
	"lagat/rdx"
	"lagat/recipes"
	"lagat/routes"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Set up all routes and middleware layers
func setupRouter(cfg *config.Config, log *logrus.Logger, d *routes.Deps) http.Handler {
	router := routes.New(d)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	return middleware.Logging(log)(middleware.RecoverMiddleware(log)(middleware.SecurityHeaders(c.Handler(router))))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	client, err := db.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		cancel()
		log.WithError(err).Fatal("connect mongodb")
	}
	if err := db.CreateIndexes(connectCtx); err != nil {
		log.WithError(err).Warn("create indexes")
	}
	cancel()
	log.Info("connected to mongodb")

	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("disconnect mongodb")
		}
	}()

	store := &pantry.MongoStore{Coll: db.PantryCollection}
	hub := pantry.NewHub(store, log)

	var gw gateway.Gateway = &gateway.Mongo{
		Recipes:         db.RecipeCollection,
		Ingredients:     db.RecipeIngredientCollection,
		Offers:          db.OfferCollection,
		Recommendations: db.RecommendationCollection,
		Matches:         db.MatchCollection,
	}

	// Without redis the service runs as a single instance: events stay in
	// process and nothing is cached.
	var events mq.Emitter = mq.NewLocal(hub.HandleEvent)
	if cfg.Redis.Addr != "" {
		conn, err := rdx.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("connect redis")
		}
		defer conn.Close()

		gw = gateway.NewCached(gw, rdx.NewCache(conn, "lagat:"), cfg.Redis.CacheTTL, log)
		events = &mq.Redis{Conn: conn, Channel: globals.PantryChannel}
		go func() {
			if err := mq.Listen(ctx, conn, globals.PantryChannel, hub.HandleEvent, log); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("pantry event listener stopped")
			}
		}()
		log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	upgrader := live.NewUpgrader(cfg.AllowedOrigins)
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	authService := &auth.Service{
		Users:       &auth.MongoUsers{Coll: db.UserCollection},
		Tokens:      tokens,
		Log:         log,
		CommandsURL: cfg.CommandsURL,
		HTTP:        httpClient,
	}

	rateLimiter := ratelim.NewRateLimiter(cfg.Limit.RPS, cfg.Limit.Burst)
	if err := rateLimiter.TrustProxies(cfg.Limit.TrustedProxies); err != nil {
		log.WithError(err).Fatal("configure rate limiter")
	}
	go rateLimiter.Run(time.Minute, ctx.Done())

	handler := setupRouter(cfg, log, &routes.Deps{
		Auth:        authService,
		Middleware:  middleware.NewAuth(tokens),
		RateLimiter: rateLimiter,
		Recipes:     &recipes.Handlers{Gateway: gw, PageSize: cfg.Feed.PageSize, Log: log},
		Feed: &feed.Sessions{
			Gateway:        gw,
			Upgrader:       upgrader,
			Log:            log,
			PageSize:       cfg.Feed.PageSize,
			Timeout:        cfg.RequestTimeout,
			PreferredStore: authService.PreferredStore,
			Preferences: func(ctx context.Context, userID string) feed.Preferences {
				return authService.PreferencesFor(ctx, userID)
			},
		},
		Pantry: &pantry.Service{
			Store:       store,
			Hub:         hub,
			Events:      events,
			Upgrader:    upgrader,
			Log:         log,
			CommandsURL: cfg.CommandsURL,
			HTTP:        httpClient,
			Timeout:     cfg.RequestTimeout,
		},
		Home:       &home.Service{Pantry: store, PreferredStore: authService.PreferredStore, Log: log},
		ImageProxy: imageproxy.New(httpClient, cfg.Proxy.AllowedHosts, cfg.Proxy.MaxBytes, log),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Info("cleaning up resources before shutdown")
		stop()
	})

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, shutting down gracefully")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
		return
	}
	log.Info("server stopped cleanly")
}
