// Package health periodically probes configured providers and records
// their status and latency.
package health

import (
	"context"
	"log"
	"time"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/provider"
	"github.com/synapsemind/backend/internal/store"
)

// Checker runs the background probe loop.
type Checker struct {
	store   store.Store
	clients provider.Factory
	cfg     config.HealthConfig
}

// NewChecker wires a checker. clients defaults to provider.New when nil.
func NewChecker(s store.Store, clients provider.Factory, cfg config.HealthConfig) *Checker {
	if clients == nil {
		clients = provider.New
	}
	return &Checker{store: s, clients: clients, cfg: cfg}
}

// Run probes once immediately, then on every interval tick until the
// context is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[health] checker stopped")
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll probes every enabled provider holding a credential and persists
// the outcome. Providers without a credential are marked offline.
func (c *Checker) CheckAll(ctx context.Context) {
	providers, err := c.store.ListProviders(ctx)
	if err != nil {
		log.Printf("[health] failed to list providers: %v", err)
		return
	}

	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		updated := c.Check(ctx, p)
		if err := c.store.UpdateProvider(ctx, updated); err != nil {
			log.Printf("[health] failed to record status for %s: %v", p.Name, err)
		}
	}
}

// Check probes one provider and returns the record with refreshed status
// fields; it does not persist.
func (c *Checker) Check(ctx context.Context, p discussion.Provider) discussion.Provider {
	now := time.Now().UTC()
	p.LastCheckAt = &now

	if p.APIKey == "" {
		p.Status = discussion.StatusOffline
		return p
	}

	client, err := c.clients(ctx, p)
	if err != nil {
		p.Status = discussion.StatusError
		log.Printf("[health] provider=%s client error: %v", p.Name, err)
		return p
	}

	latency, err := client.Probe(ctx)
	p.AvgResponseTime = latency
	if err != nil {
		p.Status = discussion.StatusError
		log.Printf("[health] provider=%s probe failed: %v", p.Name, err)
		return p
	}

	p.Status = discussion.StatusOnline
	return p
}
