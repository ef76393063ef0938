package app

import (
	"botswarm/internal/config"
	"botswarm/internal/dispatch"
	"botswarm/internal/schedule"
	"botswarm/internal/server"
	"botswarm/internal/storage"
)

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapDispatchOptions(cfg *config.Config, origin string) (dispatch.Options, error) {
	timeout, err := config.ParseDurationOrDefault("dispatch.task_timeout", cfg.Dispatch.TaskTimeout, dispatch.DefaultTaskTimeout)
	if err != nil {
		return dispatch.Options{}, err
	}
	return dispatch.Options{
		Origin:           origin,
		MaxConcurrent:    cfg.Dispatch.MaxConcurrent,
		TaskTimeout:      timeout,
		MinPerEngine:     cfg.Dispatch.MinPerEngine,
		LaunchRatePerSec: float64(cfg.Dispatch.LaunchRatePerSec),
	}, nil
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	entries := make([]schedule.Entry, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		entries = append(entries, schedule.Entry{
			Name:      s.Name,
			Cron:      s.Cron,
			MeetingID: s.MeetingID,
			Password:  s.Password,
			BotCount:  s.BotCount,
			Enabled:   s.Enabled,
		})
	}
	return schedule.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
		Entries:  entries,
	}
}

func mapServerOptions(sc config.ServerConfig) (server.Options, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 0)
	if err != nil {
		return server.Options{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 0)
	if err != nil {
		return server.Options{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, 0)
	if err != nil {
		return server.Options{}, err
	}
	return server.Options{
		Addr:         sc.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}
