package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"whiteboard/backend/config"
	"whiteboard/backend/internal/activity"
	"whiteboard/backend/internal/cache"
	"whiteboard/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instance := uuid.NewString()

	// === 光标存储 + 多实例转发 ===
	presence := cache.NewMemoryPresence()
	var relay *ws.RedisRelay
	if cfg.Redis.Enabled {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
		relay = ws.NewRedisRelay(rdb, instance)
	}

	// === 活动事件 Kafka Producer ===
	var sink ws.ActivitySink
	if cfg.Kafka.Enabled {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()
		dispatcher := activity.NewDispatcher(producer, cfg.Kafka.Topic, activity.Options{
			QueueSize:   cfg.Kafka.QueueSize,
			Workers:     cfg.Kafka.Workers,
			MaxRetry:    cfg.Kafka.MaxRetry,
			BaseBackoff: cfg.Kafka.BaseBackoff,
			MaxBackoff:  cfg.Kafka.MaxBackoff,
		})
		// defer 逆序执行：先排空队列，再关闭 producer
		defer dispatcher.Close()
		sink = dispatcher
	}

	// relay 为 nil 指针时不能直接赋给接口，否则 hub 里判断不为 nil
	var hubRelay ws.Relay
	if relay != nil {
		hubRelay = relay
	}
	hub := ws.NewHub(presence, hubRelay, cfg.Pointer.CursorTTL)
	manager := ws.NewManager(hub, sink, ws.ManagerOptions{
		AllowedOrigins: cfg.Running.AllowedOrigins,
		SendQueueSize:  cfg.Pointer.SendQueueSize,
		MaxMessageSize: cfg.Pointer.MaxMessageSize,
		PongWait:       cfg.Pointer.PongWait,
		WriteWait:      cfg.Pointer.WriteWait,
		Instance:       instance,
	})

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/ws", manager.WebSocketConnect)
	r.GET("/rooms", manager.Rooms)
	r.GET("/rooms/:room/cursors", manager.Cursors)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "instance": instance})
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Running.Port), Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("whiteboard relay listening on %s (instance=%s)", srv.Addr, instance)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx, hub) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("whiteboard relay stopped: %v", err)
	}
}
