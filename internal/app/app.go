// Package app wires the mirroring engine together: venue adapters,
// caches, the reconciliation components, the supervisor, and the
// operational HTTP surface.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/supervisor"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/cache"
	"github.com/mirrordesk/perp-mirror/pkg/config"
	"github.com/mirrordesk/perp-mirror/pkg/healthprobe"
	"github.com/mirrordesk/perp-mirror/pkg/httpserver"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	source   venue.SourceClient
	mirror   venue.MirrorClient
	clock    venue.Clock
	notifier venue.Notifier

	controller *controller.Controller
	prices     *pricetracker.Tracker
	guard      *marginguard.Guard
	supervisor *supervisor.Supervisor
	store      storage.Store
	caches     []*cache.RistrettoSet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
