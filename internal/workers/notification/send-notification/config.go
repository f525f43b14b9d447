package sendnotification

import (
	"time"

	"course-notify/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func ConfigFrom(w config.WorkerConfig) *Config {
	c := &Config{Timeout: config.GetDuration(w.Timeout)}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}
