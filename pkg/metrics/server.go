package metrics

import (
	"net/http"

	"group_chat_client/pkg/config"
	"group_chat_client/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StartServer 根據環境變數啟動 metrics 伺服器
func StartServer(port string) *http.Server {
	if config.IsProduction() || port == "" {
		logger.Log.Info("metrics server is disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		logger.Log.Info("Starting metrics server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
