package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trafficvision/sign-detection-service/detections"
)

const (
	defaultPoolSize   = 4
	acquireTimeout    = 5 * time.Second
	healthCheckPeriod = 60 * time.Second
)

// pooledDetector couples a detector with the model session it owns, so the
// pool can release native resources on teardown.
type pooledDetector struct {
	*detections.Detector
	session *detections.ModelSession
}

func newPooledDetector(cfg detections.Config, catalog *detections.Catalog, log *zap.SugaredLogger) (*pooledDetector, error) {
	session, err := detections.NewModelSession(cfg.ModelPath, catalog.Size())
	if err != nil {
		return nil, err
	}
	detector, err := detections.NewDetector(cfg, session, catalog, log)
	if err != nil {
		session.Destroy()
		return nil, err
	}
	return &pooledDetector{Detector: detector, session: session}, nil
}

func (pd *pooledDetector) destroy() {
	pd.session.Destroy()
}

// detectorPool hands out detectors for concurrent HTTP requests. Every
// entry holds an independently loaded model session, so no session ever
// runs two inferences at once.
type detectorPool struct {
	detectors  chan *pooledDetector
	size       int
	cfg        detections.Config
	catalog    *detections.Catalog
	log        *zap.SugaredLogger
	mu         sync.Mutex
	closed     bool
	metrics    *poolMetrics
	lastErrors []error
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

func newDetectorPool(cfg detections.Config, catalog *detections.Catalog, size int, log *zap.SugaredLogger) (*detectorPool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}

	pool := &detectorPool{
		detectors: make(chan *pooledDetector, size),
		size:      size,
		cfg:       cfg,
		catalog:   catalog,
		log:       log,
		metrics:   &poolMetrics{},
	}

	for i := 0; i < size; i++ {
		pd, err := newPooledDetector(cfg, catalog, log)
		if err != nil {
			pool.destroy()
			return nil, fmt.Errorf("failed to initialize detector %d: %w", i, err)
		}
		pool.detectors <- pd
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *detectorPool) acquire(ctx context.Context) (*pooledDetector, error) {
	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case pd := <-p.detectors:
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return pd, nil
	case <-time.After(acquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available detector")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *detectorPool) release(pd *pooledDetector) {
	if p.closed {
		pd.destroy()
		return
	}

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.detectors <- pd
}

func (p *detectorPool) destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.detectors)

	for pd := range p.detectors {
		pd.destroy()
	}
}

func (p *detectorPool) healthCheck() {
	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if p.closed {
			return
		}

		p.mu.Lock()
		currentSize := len(p.detectors)
		p.mu.Unlock()

		if currentSize < p.size {
			p.replenish(p.size - currentSize)
		}
	}
}

func (p *detectorPool) replenish(count int) {
	for i := 0; i < count; i++ {
		pd, err := newPooledDetector(p.cfg, p.catalog, p.log)
		if err != nil {
			p.recordError(err)
			continue
		}
		p.detectors <- pd
	}
}

func (p *detectorPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Errorf("pool replenish failed: %v", err)
	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *detectorPool) getMetrics() map[string]any {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return map[string]any{
		"pool_size":        p.size,
		"detectors_in_use": p.metrics.inUse,
		"total_acquired":   p.metrics.totalAcquired,
		"total_released":   p.metrics.totalReleased,
		"acquire_failures": p.metrics.acquireFailures,
	}
}
