/*
Package service implements C10, the gateway's HTTP front door: JSON-RPC
dispatch at /rpc, the per-agent proxy at /agents/:id, card resolution,
liveness and cluster endpoints. Grounded on the teacher's pkg/service
(agent.go's fiber wiring and handleRPC/handleTaskOperation shape,
webhook.go's route layout) generalized from one hard-coded agent to the
full multi-agent, multi-protocol gateway the spec describes.
*/
package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/superx/pkg/a2a"
	"github.com/theapemachine/superx/pkg/auth"
	"github.com/theapemachine/superx/pkg/cluster"
	"github.com/theapemachine/superx/pkg/mcpsession"
	"github.com/theapemachine/superx/pkg/metrics"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/sse"
	"github.com/theapemachine/superx/pkg/task"
	"github.com/theapemachine/superx/pkg/transport"
	"github.com/theapemachine/superx/pkg/worker"
)

// Config bounds the gateway's own behavior, independent of any one agent's
// worker.Config.
type Config struct {
	Addr          string
	PublicBaseURL string
	CallTimeout   time.Duration
	CardCacheTTL  time.Duration
	RateLimitRPS  int64
	RateLimitSpan time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		PublicBaseURL: "http://localhost:8080",
		CallTimeout:   15 * time.Second,
		CardCacheTTL:  5 * time.Minute,
		RateLimitRPS:  100,
		RateLimitSpan: time.Second,
	}
}

// Gateway wires every component (C1-C9) behind the HTTP surface C10
// describes. One instance serves the whole process; there is no
// per-request allocation of any of its dependencies.
type Gateway struct {
	cfg Config
	app *fiber.App

	registry  *registry.Registry
	adapters  *protocol.Registry
	pool      *worker.Pool
	mcpPool   *mcpsession.Pool
	store     *task.Store
	consumer  *sse.Consumer
	transport *transport.Client
	cluster   *cluster.View
	limiter   *auth.RateLimiter

	cardMu sync.Mutex
	cards  map[string]cachedCard
}

type cachedCard struct {
	card      *a2a.AgentCard
	fetchedAt time.Time
}

// New assembles a Gateway from its already-constructed collaborators. The
// caller owns startup ordering (registry populated before Start, pool's
// transport shared with the gateway's own transport, etc).
func New(cfg Config, reg *registry.Registry, adapters *protocol.Registry, pool *worker.Pool, store *task.Store, trans *transport.Client, clusterView *cluster.View) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  reg,
		adapters:  adapters,
		pool:      pool,
		mcpPool:   mcpsession.NewPool(),
		store:     store,
		consumer:  sse.NewConsumer(store),
		transport: trans,
		cluster:   clusterView,
		limiter:   auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitSpan),
		cards:     make(map[string]cachedCard),
		app: fiber.New(fiber.Config{
			AppName:           "superx-gateway",
			ServerHeader:      "superx-gateway",
			StreamRequestBody: true,
		}),
	}
}

// Start wires middleware and routes, then blocks serving HTTP.
func (g *Gateway) Start() error {
	g.app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}), healthcheck.New(), g.rateLimit)

	g.app.Get("/health", g.handleHealth)
	g.app.Get("/cluster", g.handleCluster)
	g.app.Get("/metrics", fiberadaptor.HTTPHandler(metrics.Handler()))
	g.app.Post("/rpc", g.handleRPC)
	g.app.Post("/agents/:id", g.handleAgentProxy)
	g.app.Get("/agents/:id/.well-known/agent-card.json", g.handleAgentCard)

	return g.app.Listen(g.cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown drains in-flight requests and closes the task store's owning
// goroutine, giving callers one place to wind the gateway down cleanly.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if err := g.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	g.store.Close()
	return nil
}

// rateLimit applies a single process-wide token bucket. The spec's
// non-goals exclude per-tenant isolation, so one shared bucket (rather
// than one per client IP) is the deliberately simple fit.
func (g *Gateway) rateLimit(ctx fiber.Ctx) error {
	if !g.limiter.Allow() {
		return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": fiber.Map{"code": -32003, "message": "rate limit exceeded"},
		})
	}
	return ctx.Next()
}

func (g *Gateway) handleHealth(ctx fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status":  "ok",
		"workers": g.pool.Health(),
	})
}

func (g *Gateway) handleCluster(ctx fiber.Ctx) error {
	info := g.cluster.Info(ctx.Context())
	return ctx.JSON(info)
}
