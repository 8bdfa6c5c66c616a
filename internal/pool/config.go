package pool

import (
	"github.com/kyleking/slidefill/internal/config"
)

// NewWorkerPoolFromConfig sizes a pool for the share workflow
func NewWorkerPoolFromConfig(cfg config.ShareConfig) *WorkerPool {
	return NewWorkerPool(cfg.Workers, cfg.Workers, config.Duration(cfg.RateLimit))
}

// BackoffFromConfig reads the retry policy for rate-limited API calls
func BackoffFromConfig(cfg config.ShareConfig) Backoff {
	return Backoff{
		Base:       config.Duration(cfg.BackoffBase),
		Max:        config.Duration(cfg.MaxBackoff),
		MaxRetries: cfg.MaxRetries,
	}
}
