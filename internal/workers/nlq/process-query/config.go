package processquery

import (
	"time"

	"wapi-nlq/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
	MaxRetries    int
}

func LoadConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{
		Timeout:       timeout,
		MaxJobsActive: wc.MaxJobsActive,
		MaxRetries:    wc.MaxRetries,
	}
}
