package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/disk"
	shortlinkhttpapi "yacut.local/internal/app/shortlink/httpapi"
	"yacut.local/internal/app/shortlink/repo"
	"yacut.local/internal/app/shortlink/stats"
	"yacut.local/internal/app/shortlink/upload"
	"yacut.local/internal/platform/config"
	"yacut.local/internal/platform/db"
	"yacut.local/internal/platform/httpmiddleware"
	"yacut.local/internal/platform/httpserver"
	"yacut.local/internal/platform/metrics"
	"yacut.local/internal/platform/migrate"
	"yacut.local/internal/platform/redisclient"
	"yacut.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// store 是三个后端共同提供的能力。
type store interface {
	shortlink.Store
	stats.Sink
	Ping(ctx context.Context) error
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore 按 STORAGE 选择后端；返回的 cleanup 负责关闭连接。
func openStore(cfg config.Config) (store, func(), error) {
	switch cfg.Storage {
	case config.StorageMemory:
		slog.Warn("using in-memory store, records are lost on restart")
		return repo.NewMemoryStore(), func() {}, nil

	case config.StorageRedis:
		rdb, err := redisclient.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr)
		return repo.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil

	default:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("数据库连接成功")

		if cfg.MigrateOnStart {
			res, err := migrate.Up(ctx, pool, migrate.Options{})
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			slog.Info("migrations done", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}

		var bloom *repo.BloomFilter
		if cfg.BloomEnabled {
			bloom = repo.NewBloomFilter(cfg.BloomExpectedItems, cfg.BloomFPRate)
		}
		s := repo.NewPostgresStore(pool, bloom)
		n, err := s.WarmBloom(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if bloom != nil {
			slog.Info("bloom filter warmed", "items", n)
		}
		return s, pool.Close, nil
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registrar := shortlink.NewRegistrar(st, nil)

	if cfg.DiskToken == "" {
		slog.Warn("DISK_TOKEN is empty, file uploads will fail")
	}
	diskClient, err := disk.New(cfg.DiskToken, cfg.DiskAPIHost, nil)
	if err != nil {
		return err
	}
	pipeline := upload.New(diskClient, registrar, upload.NewGate(), cfg.UploadCallTimeout)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 跳转统计（根据配置选择 Channel 或 Kafka）
	var collector stats.Collector = stats.Discard{}
	consumersDone := make(chan struct{})
	switch {
	case !cfg.StatsEnabled:
		slog.Warn("hit stats disabled by config", "STATS_ENABLED", false)
		close(consumersDone)
	case cfg.KafkaEnabled:
		slog.Info("使用 Kafka 收集跳转统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		consumer := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, st)
		go func() {
			defer close(consumersDone)
			defer consumer.Close()
			consumer.Run(stopCtx)
		}()
	default:
		slog.Info("使用 Channel 收集跳转统计")
		cc := stats.NewChannelCollector(10000)
		collector = cc
		consumer := stats.NewConsumer(st, cc)
		// 不跟随 stopCtx：等 collector 关闭后把缓冲区读空再退出
		go func() {
			defer close(consumersDone)
			consumer.Run(context.Background())
		}()
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.Init(cfg.OtlpGrpcEndpoint, cfg.ServiceName)
		if shutdown == nil {
			slog.Error("trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := mux.NewRouter()
	r.Use(httpmiddleware.RequestID, httpmiddleware.Recovery, httpmiddleware.AccessLog, httpmiddleware.Metrics, httpmiddleware.TraceName)
	shortlinkhttpapi.RegisterRoutes(r, shortlinkhttpapi.Deps{
		Creator:         registrar,
		Resolver:        registrar,
		Uploader:        pipeline,
		Collector:       collector,
		BaseURL:         cfg.BaseURL,
		UploadMaxMemory: cfg.UploadMaxMemory,
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/healthz", shortlinkhttpapi.Healthz)
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("store ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"storage":      cfg.Storage,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	slog.Info("yacut starting", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "storage", cfg.Storage)

	errch := make(chan error, 2)
	go func() { errch <- httpserver.Run(stopCtx, publicSrv, cfg.ShutdownTimeout) }()
	go func() { errch <- httpserver.Run(stopCtx, adminSrv, cfg.ShutdownTimeout) }()

	err = <-errch
	stop()
	select {
	case <-errch:
	case <-time.After(cfg.ShutdownTimeout + time.Second):
	}

	// 服务器已停止接收请求，再关闭收集器，让消费者写出最后一批
	collector.Close()
	select {
	case <-consumersDone:
	case <-time.After(5 * time.Second):
		slog.Warn("hit stats consumer did not stop in time")
	}

	return err
}
