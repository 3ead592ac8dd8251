package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/vkbridge/engine/config"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine owns a device and its caches
	EngineStageInitialized
	// Engine maintenance loop is running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every device object
	EngineStageShutdown
)

const (
	minMaintenanceInterval = 10 * time.Millisecond
	maxMaintenanceInterval = time.Second
)

// Engine owns everything scoped to one device: the pipeline manager with
// its layout and pipeline caches, and the staging upload pool.
type Engine struct {
	currentStage atomic.Uint32

	backend   renderer.Backend
	pipelines *renderer.PipelineManager

	stagingMu    sync.Mutex
	staging      *renderer.StagingDataAlloc
	stagingSize  uint64
	stagingCount int

	// idle trim threshold in nanoseconds, 0 disables trimming
	idleTrim atomic.Int64

	watcherMu sync.Mutex
	watcher   *config.Watcher

	shutdownOnce sync.Once
	shutdownErr  error
}

// New opens a Vulkan device according to cfg and builds the engine on it.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.LogSetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}

	backend, err := vulkan.New(cfg.Vulkan.ApplicationName, cfg.Vulkan.EnableValidation)
	if err != nil {
		core.LogError("failed to initialize the Vulkan backend: %s", err)
		return nil, err
	}

	e, err := NewWithBackend(cfg, backend)
	if err != nil {
		_ = backend.Shutdown()
		return nil, err
	}
	return e, nil
}

// NewWithBackend builds the engine on an already initialized backend. The
// engine takes ownership of backend and shuts it down in Shutdown.
func NewWithBackend(cfg *config.Config, backend renderer.Backend) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.LogSetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}

	limits := backend.Limits()
	managerConfig := renderer.PipelineManagerConfig{
		MaxActiveBindings:        cfg.Limits.MaxActiveBindings,
		MaxUniformBuffersDynamic: limits.MaxUniformBuffersDynamic,
		MaxStorageBuffersDynamic: limits.MaxStorageBuffersDynamic,
	}
	if cfg.Limits.MaxUniformBuffersDynamic != 0 {
		managerConfig.MaxUniformBuffersDynamic = cfg.Limits.MaxUniformBuffersDynamic
	}
	if cfg.Limits.MaxStorageBuffersDynamic != 0 {
		managerConfig.MaxStorageBuffersDynamic = cfg.Limits.MaxStorageBuffersDynamic
	}

	e := &Engine{
		backend:      backend,
		pipelines:    renderer.NewPipelineManager(backend, managerConfig),
		staging:      renderer.NewStagingDataAlloc(backend, cfg.Staging.BufferSize, cfg.Staging.BufferCount),
		stagingSize:  cfg.Staging.BufferSize,
		stagingCount: cfg.Staging.BufferCount,
	}
	e.idleTrim.Store(int64(cfg.Staging.IdleTrim.Duration))
	e.currentStage.Store(uint32(EngineStageInitialized))

	core.LogInfo("engine initialized: %d max bindings, %d/%d dynamic uniform/storage buffers, staging %d x %d bytes",
		managerConfig.MaxActiveBindings,
		managerConfig.MaxUniformBuffersDynamic,
		managerConfig.MaxStorageBuffersDynamic,
		cfg.Staging.BufferCount,
		cfg.Staging.BufferSize)
	return e, nil
}

func (e *Engine) Stage() Stage {
	return Stage(e.currentStage.Load())
}

func (e *Engine) Backend() renderer.Backend {
	return e.backend
}

func (e *Engine) Pipelines() *renderer.PipelineManager {
	return e.pipelines
}

// AllocStaging hands out upload memory from the device's staging pool.
func (e *Engine) AllocStaging(align, size uint64) (renderer.BufferSlice, error) {
	e.stagingMu.Lock()
	defer e.stagingMu.Unlock()
	return e.staging.Alloc(align, size)
}

// TrimStaging releases every pooled staging buffer. Pool sizes changed by
// a configuration reload take effect here.
func (e *Engine) TrimStaging() {
	e.stagingMu.Lock()
	defer e.stagingMu.Unlock()
	e.trimStagingLocked()
}

func (e *Engine) trimStagingLocked() {
	e.staging.Trim()
	e.staging = renderer.NewStagingDataAlloc(e.backend, e.stagingSize, e.stagingCount)
}

// StagingBufferCount returns how many buffers the staging pool holds.
func (e *Engine) StagingBufferCount() int {
	e.stagingMu.Lock()
	defer e.stagingMu.Unlock()
	return e.staging.BufferCount()
}

// maintain trims the staging pool once it has been idle for longer than
// the configured threshold.
func (e *Engine) maintain() {
	threshold := time.Duration(e.idleTrim.Load())
	if threshold <= 0 {
		return
	}

	e.stagingMu.Lock()
	defer e.stagingMu.Unlock()
	if e.staging.BufferCount() == 0 {
		return
	}
	if idle := e.staging.IdleFor(); idle >= threshold {
		core.LogDebug("staging pool idle for %s, trimming", idle)
		e.trimStagingLocked()
	}
}

func maintenanceInterval(threshold time.Duration) time.Duration {
	interval := threshold / 4
	if interval < minMaintenanceInterval {
		return minMaintenanceInterval
	}
	if interval > maxMaintenanceInterval {
		return maxMaintenanceInterval
	}
	return interval
}

// Run executes the maintenance loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.currentStage.CompareAndSwap(uint32(EngineStageInitialized), uint32(EngineStageRunning)) {
		core.LogWarn("engine maintenance loop started in stage %d", e.Stage())
		return nil
	}
	defer e.currentStage.CompareAndSwap(uint32(EngineStageRunning), uint32(EngineStageInitialized))

	interval := maintenanceInterval(time.Duration(e.idleTrim.Load()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.maintain()
			// pick up a reloaded threshold
			if next := maintenanceInterval(time.Duration(e.idleTrim.Load())); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// ApplyConfig applies the settings that may change while running: the log
// level, the idle trim threshold and the staging pool size. Pool sizes are
// used from the next trim on.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if err := core.LogSetLevel(cfg.Logging.Level); err != nil {
		core.LogWarn("keeping the previous log level: %s", err)
	}
	e.idleTrim.Store(int64(cfg.Staging.IdleTrim.Duration))

	e.stagingMu.Lock()
	e.stagingSize = cfg.Staging.BufferSize
	e.stagingCount = cfg.Staging.BufferCount
	e.stagingMu.Unlock()

	core.LogInfo("applied configuration: log level %s, idle trim %s", cfg.Logging.Level, cfg.Staging.IdleTrim.Duration)
}

// WatchConfig reloads path on change and applies it through ApplyConfig.
func (e *Engine) WatchConfig(path string) error {
	e.watcherMu.Lock()
	defer e.watcherMu.Unlock()

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("closing previous config watcher: %s", err)
		}
	}
	w, err := config.Watch(path, e.ApplyConfig)
	if err != nil {
		return err
	}
	e.watcher = w
	return nil
}

// Shutdown stops the config watcher, releases the staging pool and every
// cached object, and finally the device.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage.Store(uint32(EngineStageShuttingDown))

		e.watcherMu.Lock()
		if e.watcher != nil {
			if err := e.watcher.Close(); err != nil {
				core.LogWarn("closing config watcher: %s", err)
			}
			e.watcher = nil
		}
		e.watcherMu.Unlock()

		e.stagingMu.Lock()
		e.staging.Trim()
		e.stagingMu.Unlock()

		stats := e.pipelines.Stats()
		core.LogInfo("destroying %d layouts, %d graphics and %d compute pipelines",
			stats.Layouts.Entries+stats.SlotLayouts.Entries, stats.Graphics.Entries, stats.Compute.Entries)
		e.pipelines.Destroy()

		e.shutdownErr = e.backend.Shutdown()
		e.currentStage.Store(uint32(EngineStageShutdown))
	})
	return e.shutdownErr
}
