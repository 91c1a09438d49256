// Package run contains the command to run the Cerberus daemon.
package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/establishment/cerberus/internal/build"
	"github.com/establishment/cerberus/pkg/daemon"
	daemonconfig "github.com/establishment/cerberus/pkg/daemon/config"
	"github.com/establishment/cerberus/pkg/logger"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Cerberus daemon",
		Long:  "Run the Cerberus daemon.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	bindRunFlags(cmd)

	return cmd
}

// ReadConfig returns the daemon configuration based on the values provided in the 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/cerberus', '$HOME/.cerberus', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*daemonconfig.Config, error) {
	config := daemonconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load daemon config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daemon config: %w", err)
	}

	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := config.Verify(); err != nil {
		panic(err)
	}

	logger := logger.MustNewLogger(config.Log.Format, config.Log.Level)
	daemonCtx := &DaemonContext{Logger: logger}
	if err := daemonCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

type DaemonContext struct {
	Logger logger.Logger
}

// Run starts the daemon and blocks until an external stop signal arrives.
func (s *DaemonContext) Run(ctx context.Context, config *daemonconfig.Config) error {
	s.Logger.Info(fmt.Sprintf("🐕 Cerberus Daemon %s", build.Version),
		zap.String("os", goruntime.GOOS),
		zap.String("arch", goruntime.GOARCH),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, config, s.Logger)
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}

	d.Start(ctx)

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: mux}

		go func() {
			s.Logger.Info(fmt.Sprintf("📈 starting metrics server on '%s'", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Fatal("failed to start metrics server", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	s.Logger.Warn("terminating")

	d.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Info("failed to gracefully shutdown the metrics server",
				zap.Error(err),
			)
		}
	}

	s.Logger.Info("daemon exiting. Goodbye 👋")

	return nil
}
