package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/koopa0/rejump-relay/internal"
)

func main() {
	// 載入 .env（不存在時忽略）
	_ = godotenv.Load()

	// 解析命令行參數
	var (
		port      = flag.Int("port", defaultPort(), "服務器端口（亦可用 PORT 環境變數）")
		logLevel  = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "日誌格式 (text, json)")
		sweep     = flag.Duration("sweep-interval", internal.DefaultSweepInterval, "健康掃描間隔")
		timeout   = flag.Duration("heartbeat-timeout", internal.DefaultHeartbeatTimeout, "心跳硬超時")
		grace     = flag.Duration("grace-period", internal.DefaultGracePeriod, "探測寬限期")
	)
	flag.Parse()

	// 設置日誌
	logger := setupLogger(*logLevel, *logFormat)

	// 建立中繼與附屬元件
	relay := internal.NewRelay(logger)
	hub := internal.NewHub(relay, logger)
	handler := internal.NewHandler(relay, logger)

	// 啟動健康監視器
	monitor := internal.NewMonitor(relay, logger, *sweep, *timeout, *grace)
	monitor.Start()

	// 設置路由：任意路徑的 WebSocket 升級請求都交給 Hub，
	// 其餘交給 HTTP 處理器
	routes := handler.Routes()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			hub.ServeWS(w, r)
			return
		}
		routes.ServeHTTP(w, r)
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", *port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
		// WebSocket 長連接不設整體讀寫超時
	}

	// 啟動服務器
	go func() {
		logger.Info("Rejump 中繼伺服器啟動",
			"port", *port,
			"sweep_interval", *sweep,
			"heartbeat_timeout", *timeout,
			"grace_period", *grace)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 停止健康監視器與中繼
	monitor.Stop()
	relay.Shutdown()

	logger.Info("服務器已關閉")
}

// defaultPort 預設端口：PORT 環境變數，否則 8080
func defaultPort() int {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return 8080
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
