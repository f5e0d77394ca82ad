package server

import (
	"context"
	"errors"
	"sync"

	"qian/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs registered phases once, in registration order.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger: logger,
	}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.phases = append(coordinator.phases, shutdownPhase{
		name: name,
		stop: stop,
	})
}

func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	var runErr error
	coordinator.once.Do(func() {
		for _, phase := range coordinator.phases {
			if coordinator.logger != nil {
				coordinator.logger.Debug("shutdown phase starting", map[string]string{
					"phase": phase.name,
				})
			}
			if err := phase.stop(ctx); err != nil {
				runErr = errors.Join(runErr, err)
				if coordinator.logger != nil {
					coordinator.logger.Warn("shutdown phase failed", map[string]string{
						"phase": phase.name,
						"error": err.Error(),
					})
				}
			}
		}
	})
	return runErr
}
