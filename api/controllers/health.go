package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/inventory-sync/api/responses"
	"github.com/angelmondragon/inventory-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

const (
	readinessTimeout = 2 * time.Second
	envHeader        = "X-Inventory-Env"

	checkOK          = "ok"
	checkUnavailable = "unavailable"
)

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency in parallel under one deadline. Any
// failure answers 503 with the per-dependency status in error.details.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(deps))
			failed []string
		)
		var g errgroup.Group
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			g.Go(func() error {
				status := checkOK
				if err := dep.Ping(ctx); err != nil {
					status = checkUnavailable
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "readiness check failed")
					}
				}
				mu.Lock()
				checks[name] = status
				if status != checkOK {
					failed = append(failed, name)
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if len(failed) > 0 {
			sort.Strings(failed)
			err := pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("%v unavailable", failed)).
				WithDetails(map[string]any{"checks": checks})
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
