package workers

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"os"
	"reflect"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// NamedChannel is a channel whose fill level is sampled, e.g. the
// permanent sinks queue.
type NamedChannel struct {
	Name    string
	Channel any
}

type ChannelLoad struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
}

// HubStats is one sample of the hub's health.
type HubStats struct {
	SampledAt   time.Time     `json:"sampledAt"`
	Connections int           `json:"connections"`
	Goroutines  int           `json:"goroutines"`
	CPU         float64       `json:"cpu"`
	RAM         float32       `json:"ram"`
	Channels    []ChannelLoad `json:"channels"`
	// Events counts the conversation events seen since start, by kind.
	Events map[event.Kind]uint64 `json:"events,omitempty"`
}

// HealthMonitoringWorker periodically samples the number of live
// connections, the process usage and the fill level of internal channels.
// Reading len/cap of a channel is non-blocking, so sampling never
// interferes with the goroutines using it.
type HealthMonitoringWorker struct {
	mu             sync.RWMutex
	log            *slog.Logger
	registry       contract.IRegistry
	channels       []NamedChannel
	activity       *ActivityCounter
	metricInterval time.Duration
	last           HubStats
}

// activity may be nil.
func NewHealthMonitoringWorker(log *slog.Logger, registry contract.IRegistry,
	channels []NamedChannel, activity *ActivityCounter, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		registry:       registry,
		channels:       channels,
		activity:       activity,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			stats := w.Sample(p)
			w.log.Debug("Hub health",
				"connections", stats.Connections,
				"goroutines", stats.Goroutines,
				"cpu", stats.CPU,
				"ram", stats.RAM)
		}
	}
}

// Sample takes a new measure and keeps it as the last one.
// Process figures stay at zero when p is nil or cannot be read.
func (w *HealthMonitoringWorker) Sample(p *process.Process) HubStats {
	stats := HubStats{
		SampledAt:   time.Now().UTC(),
		Connections: w.registry.Count(),
		Goroutines:  goruntime.NumGoroutine(),
		Channels:    w.channelLoads(),
	}
	if w.activity != nil {
		stats.Events = w.activity.Snapshot()
	}
	if p != nil {
		if cpu, err := p.CPUPercent(); err != nil {
			w.log.Error("Error while finding process cpu usage", "err", err)
		} else {
			stats.CPU = cpu
		}
		if ram, err := p.MemoryPercent(); err != nil {
			w.log.Error("Error while finding process ram usage", "err", err)
		} else {
			stats.RAM = ram
		}
	}
	w.mu.Lock()
	w.last = stats
	w.mu.Unlock()
	return stats
}

func (w *HealthMonitoringWorker) Last() HubStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

func (w *HealthMonitoringWorker) channelLoads() []ChannelLoad {
	loads := make([]ChannelLoad, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		loads = append(loads, ChannelLoad{Name: nc.Name, Length: v.Len(), Capacity: v.Cap()})
	}
	return loads
}
