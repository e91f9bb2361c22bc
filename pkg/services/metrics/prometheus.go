package metrics

import (
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewPrometheusService creates a service exposing metrics of the default
// registry on every path of the configured addresses.
func NewPrometheusService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}
	handler := promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(log.Named("prometheus")),
		}))
	return NewService("Prometheus", cfg, handler, log)
}
