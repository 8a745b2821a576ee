package buildinfo

import (
    "fmt"
    "runtime"

    "github.com/shirou/gopsutil/cpu"
    "github.com/shirou/gopsutil/host"
    "github.com/shirou/gopsutil/mem"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}

// SysInfo describes the machine a solve ran on. Fields that could not be
// read are left empty.
type SysInfo struct {
    Platform string `json:"platform" yaml:"platform"`
    CPU      string `json:"cpu" yaml:"cpu"`
    Cores    int    `json:"cores" yaml:"cores"`
    Memory   string `json:"memory" yaml:"memory"`
}

func System() SysInfo {
    si := SysInfo{Cores: runtime.NumCPU()}
    if h, err := host.Info(); err == nil && h != nil {
        si.Platform = h.Platform + " " + h.PlatformVersion
    }
    if c, err := cpu.Info(); err == nil && len(c) > 0 {
        si.CPU = c[0].ModelName
    }
    if n, err := cpu.Counts(true); err == nil && n > 0 {
        si.Cores = n
    }
    if v, err := mem.VirtualMemory(); err == nil && v != nil {
        si.Memory = fmt.Sprintf("%d GB", v.Total/1024/1024/1024)
    }
    return si
}
