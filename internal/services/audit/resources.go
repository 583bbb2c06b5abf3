package audit

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

const clockTicksPerSecond = 100 // Linux USER_HZ

// MonitorConfig controls backpressure thresholds
type MonitorConfig struct {
	SoftMemoryMB   int           // Pause dispatch above this heap usage
	SoftCPUPercent float64       // Pause dispatch above this process CPU
	Interval       time.Duration // Sampling interval
	HardAbortAfter time.Duration // Abort when memory holds at 2x soft for this long
}

// Monitor samples process memory and CPU and drives queue backpressure.
// Crossing a soft ceiling pauses dispatch; dropping below both resumes it.
// Memory sustained at twice the soft ceiling aborts the run.
type Monitor struct {
	cfg    MonitorConfig
	logger arbor.ILogger

	mu        sync.Mutex
	paused    bool
	memMB     float64
	cpuPct    float64
	hardSince time.Time
	aborted   bool

	onChange func(paused bool, kind string, memMB, cpuPct float64)
	onAbort  func()

	lastCPUTime time.Duration
	lastSample  time.Time

	readCPUTime func() (time.Duration, error) // swappable in tests
	readMemory  func() float64                // swappable in tests

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a resource monitor. onChange fires on every
// pause/resume transition; onAbort fires once when the hard ceiling trips.
func NewMonitor(cfg MonitorConfig, logger arbor.ILogger, onChange func(paused bool, kind string, memMB, cpuPct float64), onAbort func()) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.HardAbortAfter <= 0 {
		cfg.HardAbortAfter = 30 * time.Second
	}
	return &Monitor{
		cfg:         cfg,
		logger:      logger,
		onChange:    onChange,
		onAbort:     onAbort,
		readCPUTime: readProcessCPUTime,
		readMemory:  readHeapMB,
		stop:        make(chan struct{}),
	}
}

// Start begins sampling until Stop is called. The first sample is taken
// synchronously so dispatch decisions never run ahead of the monitor.
func (m *Monitor) Start() {
	m.sample()
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop halts sampling. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Paused reports whether dispatch should hold
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Snapshot returns the last sampled memory and CPU figures
func (m *Monitor) Snapshot() (memMB, cpuPct float64, paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memMB, m.cpuPct, m.paused
}

// sample takes one measurement and applies the threshold rules
func (m *Monitor) sample() {
	memMB := m.readMemory()

	var cpuPct float64
	now := time.Now()
	if cpuTime, err := m.readCPUTime(); err == nil {
		m.mu.Lock()
		if !m.lastSample.IsZero() {
			elapsed := now.Sub(m.lastSample)
			if elapsed > 0 {
				cpuPct = float64(cpuTime-m.lastCPUTime) / float64(elapsed) * 100
			}
		}
		m.lastCPUTime = cpuTime
		m.lastSample = now
		m.mu.Unlock()
	}

	m.apply(memMB, cpuPct)
}

// apply evaluates thresholds against one measurement
func (m *Monitor) apply(memMB, cpuPct float64) {
	m.mu.Lock()

	m.memMB = memMB
	m.cpuPct = cpuPct

	overMem := m.cfg.SoftMemoryMB > 0 && memMB > float64(m.cfg.SoftMemoryMB)
	overCPU := m.cfg.SoftCPUPercent > 0 && cpuPct > m.cfg.SoftCPUPercent
	shouldPause := overMem || overCPU

	kind := "memory"
	if !overMem && overCPU {
		kind = "cpu"
	}

	changed := shouldPause != m.paused
	m.paused = shouldPause

	// Hard ceiling: memory sustained at 2x soft
	abort := false
	if m.cfg.SoftMemoryMB > 0 && memMB > float64(2*m.cfg.SoftMemoryMB) {
		if m.hardSince.IsZero() {
			m.hardSince = time.Now()
		} else if !m.aborted && time.Since(m.hardSince) >= m.cfg.HardAbortAfter {
			m.aborted = true
			abort = true
		}
	} else {
		m.hardSince = time.Time{}
	}

	onChange := m.onChange
	onAbort := m.onAbort
	m.mu.Unlock()

	if changed {
		if shouldPause {
			m.logger.Warn().
				Float64("memory_mb", memMB).
				Float64("cpu_percent", cpuPct).
				Msg("Resource ceiling exceeded, pausing dispatch")
		} else {
			m.logger.Info().
				Float64("memory_mb", memMB).
				Float64("cpu_percent", cpuPct).
				Msg("Resource usage recovered, resuming dispatch")
		}
		if onChange != nil {
			onChange(shouldPause, kind, memMB, cpuPct)
		}
	}

	if abort {
		m.logger.Error().
			Float64("memory_mb", memMB).
			Int("soft_ceiling_mb", m.cfg.SoftMemoryMB).
			Msg("Memory sustained at twice the soft ceiling, aborting run")
		if onAbort != nil {
			onAbort()
		}
	}
}

// readHeapMB returns the current heap allocation in MB
func readHeapMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.Alloc) / (1024 * 1024)
}

// readProcessCPUTime returns cumulative user+system CPU time for this
// process from /proc/self/stat. Returns an error off Linux; callers treat
// that as CPU unknown.
func readProcessCPUTime() (time.Duration, error) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, err
	}

	// Field 2 (comm) may contain spaces; skip past the closing paren
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx < 0 || idx+2 > len(s) {
		return 0, strconv.ErrSyntax
	}
	fields := strings.Fields(s[idx+2:])
	// utime and stime are fields 14 and 15 overall, which after comm+state
	// leaves them at offsets 11 and 12
	if len(fields) < 13 {
		return 0, strconv.ErrSyntax
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, err
	}

	jiffies := utime + stime
	return time.Duration(jiffies) * time.Second / clockTicksPerSecond, nil
}
