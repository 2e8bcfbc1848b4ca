package cgroup

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// EnsureDirExists creates the directory if the path does not exist.
// Returns os.ErrExist if the path was already present.
func EnsureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, dirPerm)
	}
	return os.ErrExist
}

// ReadProcesses reads pids from a cgroup.procs file
func ReadProcesses(path string) ([]int, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	procs := strings.Split(string(content), "\n")
	rt := make([]int, 0, len(procs))
	for _, x := range procs {
		if len(x) == 0 {
			continue
		}
		p, err := strconv.Atoi(x)
		if err != nil {
			return nil, err
		}
		rt = append(rt, p)
	}
	return rt, nil
}

// AddProcesses writes pids into a cgroup.procs file
func AddProcesses(path string, procs []int) error {
	var buf bytes.Buffer
	for _, p := range procs {
		buf.WriteString(strconv.Itoa(p))
		buf.WriteByte('\n')
	}
	return writeFile(path, buf.Bytes(), filePerm)
}

// parseProcIOField extracts one counter from /proc/<pid>/io content,
// e.g. parseProcIOField(b, "wchar")
func parseProcIOField(content []byte, field string) (uint64, bool) {
	s := bufio.NewScanner(bytes.NewReader(content))
	prefix := field + ":"
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(line[len(prefix):]), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func remove(name string) error {
	if name != "" {
		return os.Remove(name)
	}
	return nil
}

func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

func writeFile(p string, content []byte, perm fs.FileMode) error {
	err := os.WriteFile(p, content, perm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, perm)
	}
	return err
}
