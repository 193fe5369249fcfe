package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"PolyChat/config"
	"PolyChat/logger"
	"PolyChat/middleware"
	"PolyChat/service/auth"
	"PolyChat/service/relay"
	"PolyChat/service/relay/handlers"
	"PolyChat/service/storage"
	"PolyChat/tools/ids"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		return
	}
	logger.Init(conf.LogLevel)
	ids.SetNodeID(conf.NodeID)

	verifier := auth.NewJWTVerifier(auth.DefaultOptions([]byte(conf.JWTSecret)))
	srv := relay.NewServer(relay.Config{
		FanoutWorkers: conf.FanoutWorkers,
		FanoutQueue:   conf.FanoutQueue,
		SendQueueSize: conf.SendQueueSize,
		PingInterval:  conf.PingInterval,
		WriteTimeout:  conf.WriteTimeout,
		ReadLimit:     conf.ReadLimit,
	}, verifier)
	handlers.RegisterAll(srv)

	// Presence mirror is optional; the relay is fully functional without it.
	if conf.RedisAddr != "" {
		mirror, merr := storage.NewMirror(storage.Config{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
			TTL:      conf.PresenceTTL,
		})
		if merr != nil {
			logger.Warnf("presence mirror disabled: %v", merr)
		} else {
			srv.SetMirror(mirror)
			defer func() { _ = mirror.Close() }()
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Origin())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET(conf.WSPath, srv.HandleWS)

	httpSrv := &http.Server{Addr: conf.ListenAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("relay listening on %s (ws path %s)", conf.ListenAddr, conf.WSPath)
		if serr := httpSrv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			logger.Errorf("http server: %v", serr)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.Close()
}
