package cgroup

const (
	// systemd mounted cgroups
	basePath    = "/sys/fs/cgroup"
	cgroupProcs = "cgroup.procs"

	filePerm = 0644
	dirPerm  = 0755
)

// v1 controller names used by the supervisor
const (
	Memory  = "memory"
	CPUAcct = "cpuacct"
	Devices = "devices"
	Freezer = "freezer"
)
