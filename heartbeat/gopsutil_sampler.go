package heartbeat

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sebastianwebdev/procwire/tagged"
)

// GopsutilSampler reports the current process's CPU percent and RSS
// (§4.6A), attached to outgoing __heartbeat_pong__ notifications when the
// heartbeat manager runs on the worker side of a channel.
func GopsutilSampler() (tagged.Value, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return tagged.Null(), err
	}
	cpuPct, err := p.CPUPercent()
	if err != nil {
		return tagged.Null(), err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return tagged.Null(), err
	}
	return tagged.OfMap(map[string]tagged.Value{
		"cpuPercent": tagged.OfNumber(cpuPct),
		"rssBytes":   tagged.OfNumber(float64(mem.RSS)),
	}), nil
}
