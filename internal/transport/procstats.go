package transport

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// DecoderStats samples CPU and memory usage of the decoding process. The
// decoder runs in-process, so the numbers come from our own pid.
type DecoderStats struct {
	mu   sync.Mutex
	proc *process.Process
}

// NewDecoderStats creates a collector for the current process.
func NewDecoderStats() *DecoderStats {
	return &DecoderStats{}
}

// Snapshot returns CPU percentage and resident set size in megabytes.
func (d *DecoderStats) Snapshot() (cpu float64, rssMB float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.proc == nil {
		d.proc, err = process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return 0, 0, err
		}
	}

	cpu, err = d.proc.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	mem, err := d.proc.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	return cpu, float64(mem.RSS) / (1024 * 1024), nil
}
