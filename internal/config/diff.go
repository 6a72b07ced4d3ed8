package config

import (
	"reflect"
	"strings"

	logx "eventsched/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// log fields describing the new values. Secrets are reported as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var fields []logx.Field

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.dispatch_schedule", newCfg.Scheduler.DispatchSchedule),
			logx.String("scheduler.cleanup_schedule", newCfg.Scheduler.CleanupSchedule),
			logx.String("scheduler.retention", newCfg.Scheduler.Retention),
		)
	}
	if oldCfg.Delivery.RatePerSec != newCfg.Delivery.RatePerSec ||
		oldCfg.Delivery.Retries() != newCfg.Delivery.Retries() ||
		!reflect.DeepEqual(oldCfg.Delivery.EnabledChannels(), newCfg.Delivery.EnabledChannels()) {
		changed = append(changed, "delivery")
		fields = append(fields,
			logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
			logx.Int("delivery.max_retries", newCfg.Delivery.Retries()),
			logx.String("delivery.channels", strings.Join(newCfg.Delivery.EnabledChannels(), ",")),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.Bool("storage.redis_password_set", newCfg.Storage.Redis.Password != ""),
		)
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}
	return changed, fields
}

// RequiresRestart reports whether the change touches settings that are
// only read at start-up.
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Storage != newCfg.Storage || oldCfg.Debug != newCfg.Debug ||
		!reflect.DeepEqual(oldCfg.Delivery.EnabledChannels(), newCfg.Delivery.EnabledChannels())
}
