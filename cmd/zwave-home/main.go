package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"zwave-go-home/internal/pending"
	"zwave-go-home/internal/productdb"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/store"
	"zwave-go-home/internal/tracelog"
	"zwave-go-home/internal/zwave"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Trace struct {
		// Path of the CBOR frame trace; empty disables tracing.
		Path string `yaml:"path"`
	} `yaml:"trace"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ProductsDir string `yaml:"products_dir"`
}

func (c *Config) validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zwave-go-home starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *Config, logger *slog.Logger) error {
	products, err := productdb.LoadDir(cfg.ProductsDir, logger)
	if err != nil {
		return fmt.Errorf("load product definitions: %w", err)
	}
	registry := zwave.NewRegistry(logger)
	logger.Info("command class registry initialized", "classes", len(registry.All()), "products", products.Len())

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var portOpts []serialapi.PortOption
	if cfg.Trace.Path != "" {
		tracer, err := tracelog.Open(cfg.Trace.Path)
		if err != nil {
			return err
		}
		defer tracer.Close()
		portOpts = append(portOpts, serialapi.WithTracer(tracer))
		logger.Info("frame trace enabled", "path", cfg.Trace.Path)
	}

	port, err := serialapi.OpenPort(cfg.Serial.Port, cfg.Serial.Baud, logger, portOpts...)
	if err != nil {
		return err
	}
	defer port.Close()

	events := zwave.NewEventBus(logger)
	nw := zwave.NewNetwork(port, db, registry, products, events, pending.NewTable(), logger)
	defer nw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return port.Run(gctx)
	})
	g.Go(func() error {
		for f := range port.Frames() {
			if err := nw.HandleFrame(f); err != nil {
				logger.Warn("handle frame", "frame", f.String(), "err", err)
			}
		}
		return nil
	})

	// Start MQTT bridge (no-op when built with no_mqtt tag) before nodes are
	// restored, so their events are seen.
	mqtt := initMQTT(nw, cfg, logger)
	defer mqtt.Stop()

	if err := nw.Restore(); err != nil {
		logger.Error("restore nodes", "err", err)
	}
	mqtt.Restored()
	if err := nw.Start(); err != nil {
		stop()
		return errors.Join(fmt.Errorf("start network: %w", err), g.Wait())
	}

	<-gctx.Done()
	logger.Info("shutting down")
	return g.Wait()
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "zwave-home.db"
	}
	if cfg.ProductsDir == "" {
		cfg.ProductsDir = "products"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zwave"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
