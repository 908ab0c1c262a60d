package throttle

import (
	"errors"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the throttler's requests per second and burst
// capacity. With PerHost set, every request host gets its own bucket.
type Config struct {
	RPS     int  `mapstructure:"rps" validate:"gte=0"`
	Burst   int  `mapstructure:"burst" validate:"gte=0"`
	PerHost bool `mapstructure:"per_host"`
}

// Enabled reports whether cfg describes a usable limit.
func (cfg Config) Enabled() bool {
	return cfg.RPS > 0 && cfg.Burst > 0
}
