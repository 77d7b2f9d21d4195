// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package socket locates and manages the per-process Unix domain socket
// each debug-info RPC server (rpcdebuginfo.Serve) listens on: a client
// that already knows a server's OS user id and process id can Dial it
// directly, and a tool with neither can still discover which pids are
// currently serving a registry via ListLive, the inverse of
// CollectGarbage's dead-socket sweep.
package socket // import "golang.org/x/debuginfo/socket"

// TODO: euid instead of uid?
// TODO: Windows support.

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// atoi is like strconv.Atoi but we aim to minimize this package's dependencies.
func atoi(s string) (i int, ok bool) {
	for _, c := range s {
		if c < '0' || '9' < c {
			return 0, false
		}
		i = 10*i + int(c-'0')
	}
	return i, true
}

// itoa is like strconv.Itoa but we aim to minimize this package's dependencies.
func itoa(i int) string {
	var buf [30]byte
	n := len(buf)
	neg := false
	if i < 0 {
		i = -i
		neg = true
	}
	ui := uint(i)
	for ui > 0 || n == len(buf) {
		n--
		buf[n] = byte('0' + ui%10)
		ui /= 10
	}
	if neg {
		n--
		buf[n] = '-'
	}
	return string(buf[n:])
}

func names(uid, pid int) (dirName, socketName string) {
	dirName = "/tmp/debuginfo-socket-uid" + itoa(uid)
	socketName = dirName + "/pid" + itoa(pid)
	return
}

// Listen creates a PID-specific socket under a UID-specific sub-directory of
// /tmp. That sub-directory is created with 0700 permission bits (before
// umasking), so that only processes with the same UID can dial that socket.
func Listen() (net.Listener, error) {
	dirName, socketName := names(os.Getuid(), os.Getpid())
	if err := os.MkdirAll(dirName, 0700); err != nil {
		return nil, err
	}
	if err := os.Remove(socketName); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return net.Listen("unix", socketName)
}

// Dial dials the Unix domain socket created by the process with the given UID
// and PID.
func Dial(uid, pid int) (net.Conn, error) {
	_, socketName := names(uid, pid)
	return net.Dial("unix", socketName)
}

// pidsInDir returns every pid encoded in a "pidN" socket file name found
// in dirName, without regard to whether the process behind it is still
// alive.
func pidsInDir(dirName string) ([]int, error) {
	dir, err := os.Open(dirName)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	fileNames, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, fileName := range fileNames {
		if len(fileName) < 3 || fileName[:3] != "pid" {
			continue
		}
		pid, ok := atoi(fileName[3:])
		if !ok {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// isAlive reports whether pid still names a running process, by sending
// it signal 0: os.FindProcess always succeeds on Unix even for a dead
// pid, so the kill-with-signal-0/ESRCH probe is the only reliable check.
func isAlive(pid int) bool {
	return unix.Kill(pid, 0) != unix.ESRCH
}

// CollectGarbage deletes any no-longer-used sockets in the UID-specific sub-
// directory of /tmp.
func CollectGarbage() {
	dirName, _ := names(os.Getuid(), os.Getpid())
	pids, err := pidsInDir(dirName)
	if err != nil {
		return
	}
	for _, pid := range pids {
		if isAlive(pid) {
			continue
		}
		_, socketName := names(os.Getuid(), pid)
		os.Remove(socketName)
	}
}

// ListLive returns the pids of every process owned by uid that currently
// has a live debug-info RPC socket, so a tool like dbginfoctl can offer
// an attach target without the operator already knowing its pid. A
// socket file left behind by a process that has since exited is
// filtered out by the same liveness probe CollectGarbage uses to find
// garbage, but ListLive never removes anything itself.
func ListLive(uid int) ([]int, error) {
	dirName, _ := names(uid, 0)
	pids, err := pidsInDir(dirName)
	if err != nil {
		return nil, err
	}
	live := pids[:0]
	for _, pid := range pids {
		if isAlive(pid) {
			live = append(live, pid)
		}
	}
	return live, nil
}
