package forkexec

import (
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	_SECCOMP_SET_MODE_FILTER   = 1
	_SECCOMP_FILTER_FLAG_TSYNC = 1

	// makedev(1, n) for the small char devices recreated under /dev
	devNullNum    = 1<<8 | 3
	devZeroNum    = 1<<8 | 5
	devFullNum    = 1<<8 | 7
	devRandomNum  = 1<<8 | 8
	devURandomNum = 1<<8 | 9
)

// pre-marshaled path and fs strings used by the child after clone
var (
	none  = [...]byte{'n', 'o', 'n', 'e', 0}
	slash = [...]byte{'/', 0}
	tmpfs = [...]byte{'t', 'm', 'p', 'f', 's', 0}

	dev        = []byte("/dev\x00")
	devMode    = []byte("mode=755\x00")
	devNull    = []byte("/dev/null\x00")
	devZero    = []byte("/dev/zero\x00")
	devFull    = []byte("/dev/full\x00")
	devRandom  = []byte("/dev/random\x00")
	devURandom = []byte("/dev/urandom\x00")

	devNodes = []struct {
		path *byte
		num  uintptr
	}{
		{&devNull[0], devNullNum},
		{&devZero[0], devZeroNum},
		{&devFull[0], devFullNum},
		{&devRandom[0], devRandomNum},
		{&devURandom[0], devURandomNum},
	}

	// go does not allow constant uintptr to be negative...
	_AT_FDCWD = unix.AT_FDCWD
)
