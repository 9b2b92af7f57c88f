// Package stress runs contention workloads against the primitives and
// checks their guarantees while they run: mutual exclusion, reader/writer
// exclusivity, no lost condition variable wakeups, and exactly-once
// initialization.
package stress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/codelif/futexsync/internal/futex"
	"github.com/codelif/futexsync/internal/rawsync"
	"github.com/codelif/futexsync/shm"
)

var (
	ErrViolation        = errors.New("stress: invariant violated")
	ErrUnknownPrimitive = errors.New("stress: unknown primitive")
)

// a condvar waiter that sees nothing for this long has lost a wakeup
const stallTimeout = 10 * time.Second

type Config struct {
	Workers    int
	Iterations int
	// Shared places the primitives in a memfd region and uses the shared
	// futex queue.
	Shared bool
}

type Report struct {
	Primitive string
	Shared    bool
	Workers   int
	Ops       int
	Elapsed   time.Duration
}

func (r Report) String() string {
	scope := "private"
	if r.Shared {
		scope = "shared"
	}
	return fmt.Sprintf("%s (%s): %d ops by %d workers in %s", r.Primitive, scope, r.Ops, r.Workers, r.Elapsed)
}

type workload[S futex.Scope] struct {
	run   func(ctx context.Context, a *arena[S], worker int, cfg Config) error
	check func(a *arena[S], cfg Config) error
}

func workloads[S futex.Scope]() map[string]workload[S] {
	return map[string]workload[S]{
		"mutex":   {run: runMutex[S]},
		"rwlock":  {run: runRwLock[S]},
		"condvar": {run: runCondvar[S]},
		"once":    {run: runOnce[S], check: checkOnce[S]},
	}
}

// Primitives lists the workloads Run accepts.
func Primitives() []string {
	var names []string
	for name := range workloads[futex.Private]() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run drives the named workload with cfg.Workers goroutines for
// cfg.Iterations rounds each. It stops at the first violation.
func Run(ctx context.Context, primitive string, cfg Config) (Report, error) {
	if cfg.Workers <= 0 || cfg.Iterations <= 0 {
		return Report{}, fmt.Errorf("stress: workers and iterations must be positive, got %d and %d", cfg.Workers, cfg.Iterations)
	}

	size := arenaSize(cfg)

	if cfg.Shared {
		r, err := shm.Create(size)
		if err != nil {
			return Report{}, fmt.Errorf("creating shared region: %w", err)
		}
		defer r.Close()
		return run[futex.Shared](ctx, primitive, cfg, r.Bytes())
	}
	return run[futex.Private](ctx, primitive, cfg, make([]byte, size))
}

func run[S futex.Scope](ctx context.Context, primitive string, cfg Config, mem []byte) (Report, error) {
	w, ok := workloads[S]()[primitive]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownPrimitive, primitive)
	}

	a, err := newArena[S](mem, cfg)
	if err != nil {
		return Report{}, err
	}

	log.Debug("starting workload", "primitive", primitive, "workers", cfg.Workers, "iterations", cfg.Iterations, "shared", cfg.Shared)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Workers {
		g.Go(func() error {
			return w.run(gctx, a, i, cfg)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("%s: %w", primitive, err)
	}
	if w.check != nil {
		if err := w.check(a, cfg); err != nil {
			return Report{}, fmt.Errorf("%s: %w", primitive, err)
		}
	}

	return Report{
		Primitive: primitive,
		Shared:    cfg.Shared,
		Workers:   cfg.Workers,
		Ops:       cfg.Workers * cfg.Iterations,
		Elapsed:   time.Since(start),
	}, nil
}

// header lives at the start of the arena. Everything in it is plain words,
// so it can sit in shared memory.
type header[S futex.Scope] struct {
	mu      rawsync.Mutex[S]
	rw      rawsync.RwLock[S]
	cond    rawsync.Condvar[S]
	holders int32
	readers int32
	writers int32
	turn    uint32
}

type arena[S futex.Scope] struct {
	*header[S]
	onces []rawsync.Once[S]
	calls []int32
}

func arenaSize(cfg Config) int {
	// header, then one Once and one call counter per iteration
	return 128 + cfg.Iterations*8
}

func newArena[S futex.Scope](mem []byte, cfg Config) (*arena[S], error) {
	h, err := shm.At[header[S]](mem, 0)
	if err != nil {
		return nil, err
	}
	first, err := shm.At[rawsync.Once[S]](mem, 128)
	if err != nil {
		return nil, err
	}
	calls, err := shm.At[int32](mem, 128+cfg.Iterations*4)
	if err != nil {
		return nil, err
	}
	return &arena[S]{
		header: h,
		onces:  unsafe.Slice(first, cfg.Iterations),
		calls:  unsafe.Slice(calls, cfg.Iterations),
	}, nil
}
