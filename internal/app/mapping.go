package app

import (
	"strings"
	"time"

	"eventsched/internal/config"
	"eventsched/internal/delivery"
	"eventsched/internal/dispatch"
	"eventsched/internal/eventbus"
	"eventsched/internal/events"
	"eventsched/internal/scheduler"
	"eventsched/internal/storage"
	logx "eventsched/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := sc.BusyTimeoutDuration()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}, nil
}

func mapDispatchConfig(cfg *config.Config, loc *time.Location) dispatch.Config {
	return dispatch.Config{
		Location:   loc,
		RatePerSec: cfg.Delivery.RatePerSec,
		MaxRetries: cfg.Delivery.Retries(),
	}
}

func mapSchedulerConfig(cfg *config.Config, loc *time.Location) scheduler.Config {
	return scheduler.Config{
		Location:         loc,
		DispatchSchedule: cfg.Scheduler.DispatchSchedule,
		CleanupSchedule:  cfg.Scheduler.CleanupSchedule,
	}
}

// buildChannels registers a channel for every enabled method. IN_APP writes
// the inbox and pings the user over the bus; the rest are accepted without
// an outbound integration.
func buildChannels(cfg *config.Config, repo *events.Repo, bus eventbus.Bus, log logx.Logger) *delivery.Registry {
	reg := delivery.NewRegistry()
	for _, name := range cfg.Delivery.EnabledChannels() {
		m := events.Method(name)
		clog := log.With(logx.String("method", name))
		if m == events.MethodInApp {
			reg.Register(delivery.NewInApp(repo, delivery.BusPusher{Bus: bus}, clog))
			continue
		}
		reg.Register(delivery.NewReserved(m, clog))
	}
	return reg
}
