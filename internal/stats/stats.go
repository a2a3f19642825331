// Package stats reports the presented frame rate together with the
// process's CPU and memory footprint.
package stats

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
)

var log = logging.L("stats")

// DefaultInterval between rate reports.
const DefaultInterval = 5 * time.Second

// Usage is one resource sample. Fields are zero when unavailable.
type Usage struct {
	ProcessCPU float64
	SystemCPU  float64
	RSSMB      float64
}

// Sampler reads current resource usage.
type Sampler interface {
	Sample() Usage
}

// Report is what a Reporter logs at the end of each interval.
type Report struct {
	Frames  int
	Elapsed time.Duration
	FPS     float64
	Usage   Usage
}

// Reporter counts presented frames and logs the rate once per interval.
// It is driven from the pipeline goroutine and needs no locking.
type Reporter struct {
	interval time.Duration
	sampler  Sampler
	now      func() time.Time

	frames      int
	windowStart time.Time
	last        Report
	reports     int
}

// New returns a Reporter sampling this process through gopsutil.
func New(interval time.Duration) *Reporter {
	return newReporter(interval, newProcessSampler(), time.Now)
}

func newReporter(interval time.Duration, s Sampler, now func() time.Time) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{interval: interval, sampler: s, now: now, windowStart: now()}
}

// Tick records one presented frame and reports when the interval is over.
func (r *Reporter) Tick() {
	r.frames++
	now := r.now()
	elapsed := now.Sub(r.windowStart)
	if elapsed < r.interval {
		return
	}

	rep := Report{
		Frames:  r.frames,
		Elapsed: elapsed,
		FPS:     float64(r.frames) / elapsed.Seconds(),
	}
	if r.sampler != nil {
		rep.Usage = r.sampler.Sample()
	}
	r.last = rep
	r.reports++
	r.frames = 0
	r.windowStart = now

	log.Info("frame rate",
		"frames", rep.Frames,
		"fps", round2(rep.FPS),
		"cpuPercent", round2(rep.Usage.ProcessCPU),
		"systemCpuPercent", round2(rep.Usage.SystemCPU),
		"rssMb", round2(rep.Usage.RSSMB),
	)
}

// Last returns the most recent report and how many were made.
func (r *Reporter) Last() (Report, int) {
	return r.last, r.reports
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

type processSampler struct {
	proc *process.Process
}

func newProcessSampler() *processSampler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("process stats unavailable", logging.KeyError, err)
		return &processSampler{}
	}
	// The first Percent call only primes the counters.
	p.Percent(0)
	return &processSampler{proc: p}
}

func (s *processSampler) Sample() Usage {
	var u Usage
	if s.proc != nil {
		if pct, err := s.proc.Percent(0); err == nil {
			u.ProcessCPU = pct
		}
		if mi, err := s.proc.MemoryInfo(); err == nil && mi != nil {
			u.RSSMB = float64(mi.RSS) / 1024 / 1024
		}
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		u.SystemCPU = pct[0]
	}
	return u
}
