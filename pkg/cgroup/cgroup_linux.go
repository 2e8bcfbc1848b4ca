package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"syscall"
	"time"
)

// Cgroup is the combination of the v1 controllers for one supervised
// process group
type Cgroup struct {
	name string

	memory  *v1controller
	cpuacct *v1controller
	devices *v1controller
	freezer *v1controller

	all []*v1controller

	existing bool

	// per-pid high water mark of written bytes, maintained by
	// UpdateOutputCount
	output map[int]uint64
}

// basic device nodes whitelisted by LimitDevices and recreated by the
// child when /dev is remounted: null, zero, full, random, urandom
var basicDevices = []string{"c 1:3 rwm", "c 1:5 rwm", "c 1:7 rwm", "c 1:8 rwm", "c 1:9 rwm"}

// Create creates (or reuses) the named cgroup under each controller root
func Create(name string) (cg *Cgroup, err error) {
	c := &Cgroup{
		name:   name,
		output: make(map[int]uint64),
	}
	defer func() {
		if err != nil {
			for _, v := range c.all {
				remove(v.path)
			}
		}
	}()
	for _, v := range []struct {
		name string
		ctrl **v1controller
	}{
		{Memory, &c.memory},
		{CPUAcct, &c.cpuacct},
		{Devices, &c.devices},
		{Freezer, &c.freezer},
	} {
		p := path.Join(basePath, v.name, name)
		*v.ctrl = &v1controller{path: p}
		err = EnsureDirExists(p)
		if errors.Is(err, os.ErrExist) {
			err = nil
			c.existing = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cgroup: create %s: %w", p, err)
		}
		c.all = append(c.all, *v.ctrl)
	}
	return c, nil
}

func (c *Cgroup) String() string {
	return "v1(" + c.name + ")[memory, cpuacct, devices, freezer]"
}

// Name returns the cgroup name under the controller roots
func (c *Cgroup) Name() string {
	return c.name
}

// Existing returns true if any controller directory was opened rather
// than created
func (c *Cgroup) Existing() bool {
	return c.existing
}

// SubsysPath returns the filesystem directory of one controller; an
// unknown subsystem name is an error. The invocation-level file lock
// lives in the memory controller's directory.
func (c *Cgroup) SubsysPath(subsys string) (string, error) {
	v := c.controller(subsys)
	if v == nil {
		return "", fmt.Errorf("cgroup: unknown subsystem %q", subsys)
	}
	return v.path, nil
}

func (c *Cgroup) controller(subsys string) *v1controller {
	switch subsys {
	case Memory:
		return c.memory
	case CPUAcct:
		return c.cpuacct
	case Devices:
		return c.devices
	case Freezer:
		return c.freezer
	}
	return nil
}

// Set writes a raw controller key, used for --cgroup-option
func (c *Cgroup) Set(subsys, key, value string) error {
	v := c.controller(subsys)
	if v == nil {
		return fmt.Errorf("cgroup: unknown subsystem %q", subsys)
	}
	return v.WriteFile(key, []byte(value))
}

// AddProc moves processes into every controller of the cgroup
func (c *Cgroup) AddProc(pids ...int) error {
	for _, v := range []*v1controller{c.memory, c.cpuacct, c.devices, c.freezer} {
		if err := v.AddProc(pids...); err != nil {
			return err
		}
	}
	return nil
}

// Processes lists the pids currently in the cgroup
func (c *Cgroup) Processes() ([]int, error) {
	return c.memory.Processes()
}

// Empty reports whether no process remains in the cgroup
func (c *Cgroup) Empty() bool {
	p, err := c.Processes()
	return err == nil && len(p) == 0
}

// LimitDevices denies all device access then whitelists the basic nodes
func (c *Cgroup) LimitDevices() error {
	if err := c.devices.WriteFile("devices.deny", []byte("a")); err != nil {
		return err
	}
	for _, d := range basicDevices {
		if err := c.devices.WriteFile("devices.allow", []byte(d)); err != nil {
			return err
		}
	}
	return nil
}

// SetMemoryLimit writes memory.limit_in_bytes and, when the kernel has
// swap accounting, memory.memsw.limit_in_bytes so the limit covers
// memory+swap the way usage is read back
func (c *Cgroup) SetMemoryLimit(bytes uint64) error {
	if err := c.memory.WriteUint("memory.limit_in_bytes", bytes); err != nil {
		return err
	}
	if err := c.memory.WriteUint("memory.memsw.limit_in_bytes", bytes); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ResetUsages zeroes the cpu and memory peak counters and forgets
// output accounting from a previous occupant
func (c *Cgroup) ResetUsages() error {
	if err := c.cpuacct.WriteUint("cpuacct.usage", 0); err != nil {
		return err
	}
	if err := c.memory.WriteUint("memory.max_usage_in_bytes", 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := c.memory.WriteUint("memory.memsw.max_usage_in_bytes", 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	c.output = make(map[int]uint64)
	return nil
}

// CPUUsage reads cpuacct.usage
func (c *Cgroup) CPUUsage() (time.Duration, error) {
	ns, err := c.cpuacct.ReadUint("cpuacct.usage")
	return time.Duration(ns), err
}

// MemoryPeak reads the memory+swap high water mark, falling back to the
// memory-only counter on kernels without swap accounting
func (c *Cgroup) MemoryPeak() (uint64, error) {
	if v, err := c.memory.ReadUint("memory.memsw.max_usage_in_bytes"); err == nil {
		return v, nil
	}
	return c.memory.ReadUint("memory.max_usage_in_bytes")
}

// MemoryCurrent reads the current usage counter
func (c *Cgroup) MemoryCurrent() (uint64, error) {
	if v, err := c.memory.ReadUint("memory.memsw.usage_in_bytes"); err == nil {
		return v, nil
	}
	return c.memory.ReadUint("memory.usage_in_bytes")
}

// UpdateOutputCount samples /proc/<pid>/io for every process in the
// cgroup and keeps the per-pid maximum of written bytes. Exited pids
// keep their last observed value so short-lived writers still count.
func (c *Cgroup) UpdateOutputCount() error {
	pids, err := c.Processes()
	if err != nil {
		return err
	}
	for _, pid := range pids {
		content, err := readFile("/proc/" + strconv.Itoa(pid) + "/io")
		if err != nil {
			// the process may exit between listing and reading
			continue
		}
		if v, ok := parseProcIOField(content, "wchar"); ok && v > c.output[pid] {
			c.output[pid] = v
		}
	}
	return nil
}

// OutputUsage sums the recorded per-pid output byte counts
func (c *Cgroup) OutputUsage() uint64 {
	var total uint64
	for _, v := range c.output {
		total += v
	}
	return total
}

// KillAll freezes the cgroup, kills every task, thaws and repeats until
// no process remains
func (c *Cgroup) KillAll() error {
	for i := 0; i < 100; i++ {
		pids, err := c.Processes()
		if err != nil || len(pids) == 0 {
			return err
		}
		// freeze so no task can fork between listing and killing
		c.freezer.WriteFile("freezer.state", []byte("FROZEN"))
		for _, pid := range pids {
			syscall.Kill(pid, syscall.SIGKILL)
		}
		c.freezer.WriteFile("freezer.state", []byte("THAWED"))
		time.Sleep(2 * time.Millisecond)
	}
	return fmt.Errorf("cgroup: %s not empty after killall", c.name)
}

// Destroy kills remaining tasks and removes the controller directories
func (c *Cgroup) Destroy() error {
	if err := c.KillAll(); err != nil {
		return err
	}
	var err1 error
	for _, v := range []*v1controller{c.memory, c.cpuacct, c.devices, c.freezer} {
		if err := remove(v.path); err != nil {
			err1 = err
		}
	}
	return err1
}
