package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/metrics"
	"github.com/spigell/yojana-matcher/internal/recommend"
	"github.com/spigell/yojana-matcher/internal/resources"
	"github.com/spigell/yojana-matcher/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ranking pipeline over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address (default is server.addr from config)")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	logger.Info("starting the server", zap.String("version", version), zap.String("addr", config.Server.Addr))

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.NewMetrics()
	if err := m.Register(registry); err != nil {
		logger.Fatal("registering metrics", zap.Error(err))
	}

	loader := resources.NewLoader(buildResources(config, logger), logger)
	loader.Prefetch(ctx)

	pipeline := recommend.NewPipeline(
		recommend.WithWeights(config.Ranking.Weights),
		recommend.WithMetrics(m),
		recommend.WithLogger(logger),
	)

	srv := server.New(loader, pipeline, m, registry, logger)
	if err := srv.Run(ctx, config.Server.Addr); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}

	logger.Info("server stopped")
}
