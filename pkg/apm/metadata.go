package apm

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// buildMetadata collects service and host information once, at tracer
// construction. Host probes that fail leave their fields zero; metadata is
// best effort and must never keep the agent from starting.
func buildMetadata(service, version, environment string) *Metadata {
	md := &Metadata{
		Service: ServiceMetadata{
			Name:        service,
			Version:     version,
			Environment: environment,
			Runtime:     runtime.Version(),
			Language:    "go",
		},
		System: SystemMetadata{
			NumCPU: runtime.NumCPU(),
		},
		Process: ProcessMetadata{
			PID: os.Getpid(),
		},
	}
	if info, err := host.Info(); err == nil {
		md.System.Hostname = info.Hostname
		md.System.Platform = info.Platform
	} else if hostname, herr := os.Hostname(); herr == nil {
		md.System.Hostname = hostname
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		md.System.TotalMemory = vm.Total
	}
	return md
}
