package acquisition

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// ResourceTracker records where live resources were allocated so leaks can
// be reported with their origin
type ResourceTracker struct {
	mu        sync.Mutex
	resources map[string]*TrackedResource
	log       logger.Logger

	totalAllocated atomic.Int64
	totalReleased  atomic.Int64
	totalLeaked    atomic.Int64
}

// TrackedResource represents a tracked resource
type TrackedResource struct {
	ID          string
	Type        string
	Size        int
	AllocatedAt time.Time
	Stack       string
}

// TrackerStats summarises a tracker
type TrackerStats struct {
	Allocated int64 `yaml:"allocated"`
	Released  int64 `yaml:"released"`
	Leaked    int64 `yaml:"leaked"`
	Active    int   `yaml:"active"`
}

// NewResourceTracker creates a tracker logging leaks to log
func NewResourceTracker(log logger.Logger) *ResourceTracker {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &ResourceTracker{
		resources: make(map[string]*TrackedResource),
		log:       log.Module("resource_tracker"),
	}
}

// Track registers a resource and returns its id
func (rt *ResourceTracker) Track(resourceType string, size int) string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	r := &TrackedResource{
		ID:          uuid.NewString(),
		Type:        resourceType,
		Size:        size,
		AllocatedAt: time.Now(),
		Stack:       string(buf[:n]),
	}

	rt.mu.Lock()
	rt.resources[r.ID] = r
	rt.mu.Unlock()

	rt.totalAllocated.Add(1)
	return r.ID
}

// Release marks a resource as released
func (rt *ResourceTracker) Release(id string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, exists := rt.resources[id]; !exists {
		return errors.Newf("resource %s is not tracked", id).
			Component(ComponentAcquisition).
			Category(errors.CategoryNotFound).
			Context("resource_id", id).
			Build()
	}
	delete(rt.resources, id)
	rt.totalReleased.Add(1)
	return nil
}

// ReportLeak logs a resource that was not released through its owner and
// stops tracking it
func (rt *ResourceTracker) ReportLeak(id, reason string) {
	rt.mu.Lock()
	r, exists := rt.resources[id]
	delete(rt.resources, id)
	rt.mu.Unlock()

	if !exists {
		return
	}
	rt.totalLeaked.Add(1)
	rt.log.Error("resource leaked - not properly released",
		logger.String("resource_id", r.ID),
		logger.String("resource_type", r.Type),
		logger.Int("size", r.Size),
		logger.String("reason", reason),
		logger.Time("allocated_at", r.AllocatedAt),
		logger.String("stack", r.Stack))
}

// Active returns the ids of resources still tracked
func (rt *ResourceTracker) Active() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ids := make([]string, 0, len(rt.resources))
	for id := range rt.resources {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns resource tracking statistics
func (rt *ResourceTracker) Stats() TrackerStats {
	rt.mu.Lock()
	active := len(rt.resources)
	rt.mu.Unlock()

	return TrackerStats{
		Allocated: rt.totalAllocated.Load(),
		Released:  rt.totalReleased.Load(),
		Leaked:    rt.totalLeaked.Load(),
		Active:    active,
	}
}
