// iogw bridges a packet device onto the messaging plane: it opens a device
// URI, extracts frames with a configured framer and publishes each packet to
// NATS, tracking device presence in Redis and serving health, status and
// prometheus metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	driverbase "github.com/Brazilian-Institute-of-Robotics/ros-driver-base"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/logging"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/observability"
)

// statusCache publishes the read loop's Status snapshots to the HTTP and
// metrics handlers; the driver itself is single-context and stays owned by
// the loop.
type statusCache struct {
	mu sync.RWMutex
	s  driverbase.Status
}

func (c *statusCache) set(s driverbase.Status) {
	c.mu.Lock()
	c.s = s
	c.mu.Unlock()
}

func (c *statusCache) get() driverbase.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

func main() {
	configPath := flag.String("config", "iogw.toml", "path to gateway config")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed")
	}

	drv := driverbase.New(cfg.BufferSize, buildExtractor(cfg.Framer))
	drv.SetExtractLastPacket(cfg.ExtractLast)
	drv.SetLogger(log.With().Str("device", cfg.Name).Logger())
	if err := drv.OpenURI(cfg.Device); err != nil {
		log.Fatal().Err(err).Str("uri", cfg.Device).Msg("device open failed")
	}
	defer drv.Close()
	log.Info().Str("device", cfg.Name).Str("uri", cfg.Device).Msg("device opened")

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		if nc, err = nats.Connect(cfg.NATSURL); err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("connected to nats")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	cache := &statusCache{}
	observability.RegisterMetrics()
	prometheus.MustRegister(observability.NewStatusCollector(cfg.Name, cache.get))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Listen, Handler: newRouter(cfg, cache)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(ctx, cfg, drv, nc, rdb, cache)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	stop()
	<-done
}

func newRouter(cfg gatewayConfig, cache *statusCache) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": cfg.Name})
	})
	r.GET("/status", func(c *gin.Context) {
		s := cache.get()
		c.JSON(http.StatusOK, gin.H{
			"device":  cfg.Name,
			"good_rx": s.GoodRx,
			"bad_rx":  s.BadRx,
			"tx":      s.Tx,
			"stamp":   s.Stamp,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func readLoop(ctx context.Context, cfg gatewayConfig, drv *driverbase.Driver, nc *nats.Conn, rdb *redis.Client, cache *statusCache) {
	buf := make([]byte, cfg.BufferSize)
	presenceKey := "iogw:presence:" + cfg.Name

	for ctx.Err() == nil {
		n, err := drv.ReadPacketWithFirstByte(buf, cfg.ReadTimeout, cfg.FirstByteTimeout)
		cache.set(drv.Status())

		var timeoutErr *driverbase.TimeoutError
		switch {
		case err == nil:
			publish(ctx, cfg, nc, rdb, presenceKey, buf[:n])
		case errors.As(err, &timeoutErr):
			// Silent device or partial frame; both are routine.
			continue
		case errors.Is(err, driverbase.ErrEOF):
			log.Warn().Str("device", cfg.Name).Msg("device stream ended")
			observability.RecordReadError(cfg.Name, "eof")
			return
		case errors.Is(err, driverbase.ErrBufferTooSmall):
			observability.RecordReadError(cfg.Name, "oversized_packet")
			log.Warn().Str("device", cfg.Name).Msg("dropped packet larger than read buffer")
		case errors.Is(err, driverbase.ErrBufferCorrupt):
			observability.RecordReadError(cfg.Name, "extractor_contract")
			log.Error().Str("device", cfg.Name).Msg("frame extractor misbehaved, clearing buffer")
			_ = drv.Clear()
		default:
			observability.RecordReadError(cfg.Name, "io")
			log.Error().Err(err).Str("device", cfg.Name).Msg("device read failed")
			return
		}
	}
}

func publish(ctx context.Context, cfg gatewayConfig, nc *nats.Conn, rdb *redis.Client, presenceKey string, packet []byte) {
	if nc != nil {
		if err := nc.Publish(cfg.NATSSubject, packet); err != nil {
			log.Error().Err(err).Msg("nats publish failed")
			observability.RecordReadError(cfg.Name, "publish")
			return
		}
	}
	observability.RecordPacketPublished(cfg.Name, cfg.NATSSubject)

	if rdb != nil {
		if err := rdb.Set(ctx, presenceKey, time.Now().Unix(), cfg.PresenceTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("presence update failed")
		}
	}
}
