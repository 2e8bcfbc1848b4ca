// Package cgroup provides a handle over the cgroup v1 controllers used to
// contain and account one supervised process group: memory, cpuacct,
// devices and freezer.
//
// The handle owns one directory per controller under the systemd mount
// point /sys/fs/cgroup. A handle created with a name that already exists
// reuses the directories and reports Existing() so the caller can decide
// whether to destroy them on exit.
package cgroup
