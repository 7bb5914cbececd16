// Package health implements the §4.J health endpoints, grounded on the
// teacher's dashboard route registration (internal/dashboard/routes.go):
// plain gin.HandlerFunc closures over the dependencies they check.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports whether one dependency (DB, bus, ...) is reachable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain function to a Checker.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (f CheckerFunc) Name() string                    { return f.CheckerName }
func (f CheckerFunc) Check(ctx context.Context) error { return f.Fn(ctx) }

// Registry tracks every dependency checker plus whether the process has
// ever completed a successful full check (the startup probe's condition)
// and whether it currently holds a "locked" flag (the liveness probe's
// condition, set through SetLive).
type Registry struct {
	checkers []Checker
	timeout  time.Duration

	mu      sync.Mutex
	started bool
	live    bool
}

// NewRegistry builds a Registry. timeout bounds each individual check;
// zero means 5s.
func NewRegistry(timeout time.Duration, checkers ...Checker) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{checkers: checkers, timeout: timeout, live: true}
}

// SetLive flips the liveness flag; SetLive(false) makes the liveness probe
// fail so Kubernetes restarts the pod. No rtb command calls it, so a
// running process reports live until it exits.
func (r *Registry) SetLive(live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = live
}

func (r *Registry) isLive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// checkAll runs every checker, returning the names of ones that failed.
func (r *Registry) checkAll(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, c := range r.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			failures[c.Name()] = err
		}
	}
	return failures
}

// RegisterRoutes wires /healthz/startup, /healthz/live, /healthz/ready.
func RegisterRoutes(router *gin.Engine, reg *Registry) {
	router.GET("/healthz/startup", reg.handleStartup)
	router.GET("/healthz/live", reg.handleLive)
	router.GET("/healthz/ready", reg.handleReady)
}

// handleStartup checks every dependency; once it has succeeded once it
// keeps reporting healthy without re-running checks, so a slow dependency
// recovering later doesn't flap the startup probe back to failing.
func (r *Registry) handleStartup(c *gin.Context) {
	r.mu.Lock()
	alreadyStarted := r.started
	r.mu.Unlock()

	if alreadyStarted {
		c.Status(http.StatusOK)
		return
	}

	failures := r.checkAll(c.Request.Context())
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"failures": errorStrings(failures)})
		return
	}

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	c.Status(http.StatusOK)
}

// handleLive reports whether the process is locked up, independent of any
// external dependency's reachability.
func (r *Registry) handleLive(c *gin.Context) {
	if !r.isLive() {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

// handleReady checks every dependency on every call: unlike startup, a
// dependency going down after a successful start must flip readiness back
// to unavailable so the load balancer stops routing to this pod.
func (r *Registry) handleReady(c *gin.Context) {
	failures := r.checkAll(c.Request.Context())
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"failures": errorStrings(failures)})
		return
	}
	c.Status(http.StatusOK)
}

func errorStrings(failures map[string]error) map[string]string {
	out := make(map[string]string, len(failures))
	for name, err := range failures {
		out[name] = err.Error()
	}
	return out
}
