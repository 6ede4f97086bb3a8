package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"running"`
	Redis struct {
		Enabled  bool     `mapstructure:"enabled"`
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Enabled     bool          `mapstructure:"enabled"`
		Brokers     []string      `mapstructure:"brokers"`
		Topic       string        `mapstructure:"topic"`
		QueueSize   int           `mapstructure:"queueSize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxRetry"`
		BaseBackoff time.Duration `mapstructure:"baseBackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
	} `mapstructure:"kafka"`
	Pointer struct {
		// CursorTTL 服务端记录的光标位置多久不更新视为失效
		CursorTTL      time.Duration `mapstructure:"cursorTTL"`
		SendQueueSize  int           `mapstructure:"sendQueueSize"`
		MaxMessageSize int64         `mapstructure:"maxMessageSize"`
		PongWait       time.Duration `mapstructure:"pongWait"`
		WriteWait      time.Duration `mapstructure:"writeWait"`
	} `mapstructure:"pointer"`
	Peer struct {
		// Page 页面地址，连接地址由它的协议/主机名 + Port 得出
		Page         string        `mapstructure:"page"`
		Port         int           `mapstructure:"port"`
		Room         string        `mapstructure:"room"`
		CursorMaxAge time.Duration `mapstructure:"cursorMaxAge"`
		// StrokeInterval 两次模拟笔画之间的间隔
		StrokeInterval time.Duration `mapstructure:"strokeInterval"`
		Surface        struct {
			Left   float64 `mapstructure:"left"`
			Top    float64 `mapstructure:"top"`
			Width  float64 `mapstructure:"width"`
			Height float64 `mapstructure:"height"`
		} `mapstructure:"surface"`
	} `mapstructure:"peer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8080)
	v.SetDefault("running.allowedOrigins", []string{})
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addrs", []string{"127.0.0.1:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "whiteboard-activity")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.baseBackoff", 50*time.Millisecond)
	v.SetDefault("kafka.maxBackoff", time.Second)
	v.SetDefault("pointer.cursorTTL", 30*time.Second)
	v.SetDefault("pointer.sendQueueSize", 64)
	v.SetDefault("pointer.maxMessageSize", 1024)
	v.SetDefault("pointer.pongWait", 60*time.Second)
	v.SetDefault("pointer.writeWait", 5*time.Second)
	v.SetDefault("peer.page", "http://localhost")
	v.SetDefault("peer.port", 8080)
	v.SetDefault("peer.room", "default")
	v.SetDefault("peer.cursorMaxAge", 30*time.Second)
	v.SetDefault("peer.strokeInterval", 2*time.Second)
	v.SetDefault("peer.surface.left", 0)
	v.SetDefault("peer.surface.top", 0)
	v.SetDefault("peer.surface.width", 800)
	v.SetDefault("peer.surface.height", 600)
}

// Load 读取 config.yaml；找不到配置文件时使用默认值。
// 环境变量 WHITEBOARD_<SECTION>_<KEY> 覆盖文件中的值，例如 WHITEBOARD_RUNNING_PORT。
// 不传 paths 时兼容从项目根目录或 backend 目录启动。
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)
	v.SetEnvPrefix("WHITEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
