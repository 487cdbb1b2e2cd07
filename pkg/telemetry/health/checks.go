package health

import (
	"context"
	"errors"
	"fmt"

	"incipit-hq/incipit/pkg/config"
)

// ConfigCheck reports unhealthy until a configuration snapshot is installed.
func ConfigCheck(store interface{ Snapshot() *config.Snapshot }) CheckFunc {
	return func(ctx context.Context) error {
		snap := store.Snapshot()
		if snap == nil || snap.Config == nil {
			return errors.New("configuration not loaded")
		}
		return nil
	}
}

// Pinger is implemented by components with a reachability check, such as
// history storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps p as a health check.
func PingCheck(name string, p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s unreachable: %w", name, err)
		}
		return nil
	}
}
