// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"sync"
)

// ReleaseFunc tears down one managed resource. A non-nil error is
// logged by the guard and otherwise ignored: teardown never aborts
// because one release step failed.
type ReleaseFunc func(ctx context.Context) error

// ResourceHandle identifies a registered resource for targeted
// release.
type ResourceHandle int

// Guard tracks ephemeral resources (containers, directories,
// processes) created during a run and guarantees their release on
// every exit path. Release is idempotent per resource: the executor
// releases a stage's resources right after the stage's hooks, and
// ReleaseAll at run teardown picks up only what is still
// outstanding, in reverse registration order — last created, first
// torn down, so a container is released before the image or
// directory it depends on.
//
// Safe for concurrent use; parallel stages register and release
// without coordination.
type Guard struct {
	logger *slog.Logger

	mu        sync.Mutex
	resources []*managedResource
}

type managedResource struct {
	id       string
	kind     string
	release  ReleaseFunc
	released bool
}

// NewGuard returns an empty guard. A nil logger discards messages.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{logger: logger}
}

// Register records a resource and the action that releases it.
func (g *Guard) Register(id, kind string, release ReleaseFunc) ResourceHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, &managedResource{
		id:      id,
		kind:    kind,
		release: release,
	})
	g.logger.Debug("resource registered", "id", id, "kind", kind)
	return ResourceHandle(len(g.resources) - 1)
}

// Release tears down a single resource. Releasing a handle twice is
// a no-op; the second call returns without side effects.
func (g *Guard) Release(ctx context.Context, handle ResourceHandle) {
	g.mu.Lock()
	if int(handle) < 0 || int(handle) >= len(g.resources) {
		g.mu.Unlock()
		g.logger.Warn("release of unknown resource handle", "handle", int(handle))
		return
	}
	resource := g.resources[handle]
	if resource.released {
		g.mu.Unlock()
		return
	}
	resource.released = true
	g.mu.Unlock()

	g.runRelease(ctx, resource)
}

// ReleaseAll tears down every resource not already released, in
// reverse registration order. Failures are logged and do not stop
// the remaining releases. Calling ReleaseAll again releases nothing.
func (g *Guard) ReleaseAll(ctx context.Context) {
	g.mu.Lock()
	var pending []*managedResource
	for i := len(g.resources) - 1; i >= 0; i-- {
		if !g.resources[i].released {
			g.resources[i].released = true
			pending = append(pending, g.resources[i])
		}
	}
	g.mu.Unlock()

	for _, resource := range pending {
		g.runRelease(ctx, resource)
	}
}

// Outstanding returns the number of registered resources not yet
// released.
func (g *Guard) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, resource := range g.resources {
		if !resource.released {
			count++
		}
	}
	return count
}

// runRelease is called with the resource already marked released, so
// the release action runs at most once even under concurrent calls.
func (g *Guard) runRelease(ctx context.Context, resource *managedResource) {
	if err := resource.release(ctx); err != nil {
		g.logger.Warn("resource release failed",
			"id", resource.id, "kind", resource.kind, "error", err)
		return
	}
	g.logger.Debug("resource released", "id", resource.id, "kind", resource.kind)
}
