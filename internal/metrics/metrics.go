package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/config"
)

var dogstatsd *statsd.Client

// Init creates the DogStatsD client. With no agent address configured the
// package stays a no-op.
func Init(cfg config.Datadog) {
	if cfg.AgentAddr == "" {
		log.Info().Msg("Datadog agent address not configured - metrics disabled")
		return
	}

	var err error
	dogstatsd, err = statsd.New(cfg.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = cfg.Namespace
	dogstatsd.Tags = cfg.Tags

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Count(name string, value int64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Count(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

func Timing(name string, ms float64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.TimeInMilliseconds(name, ms, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit timing metric")
		}
	}
}
