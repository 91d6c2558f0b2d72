// Package daemon implements the process-management side of running
// repmgrd unattended: PID-file locking and double-fork daemonization,
// translated directly from the original repmgrd.c's
// check_and_create_pid_file and daemonize_process (no example repo in
// the pack daemonizes, so there is no Go idiom to borrow here).
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Exit codes mirrored from the original daemon's named constants.
const (
	ExitSuccess    = 0
	ExitBadConfig  = 1
	ExitBadPIDFile = 2
	ExitSysFailure = 3
)

// ErrPIDFileLocked means the PID file names a process that is still
// alive (signal-0 succeeded against it).
var ErrPIDFileLocked = errors.New("daemon: PID file exists and its process is still running")

// CheckAndCreatePIDFile mirrors check_and_create_pid_file: if path
// already holds a live PID, refuse to start; otherwise (re)write it
// with the caller's own PID.
func CheckAndCreatePIDFile(path string) error {
	if path == "" {
		return nil
	}

	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pid != 0 {
			if processAlive(pid) {
				return ErrPIDFileLocked
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read PID file %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write PID file %s: %w", path, err)
	}
	return nil
}

// RemovePIDFile unlinks the PID file on graceful termination. A
// missing file is not an error: shutdown should not fail because the
// file was already cleaned up.
func RemovePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file %s: %w", path, err)
	}
	return nil
}

// processAlive reports whether pid names a running process, using the
// same signal-0 probe as the original's kill(pid, 0).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// stageEnv carries daemonization progress across re-exec, since a
// Go binary cannot safely call a bare fork() in a multi-threaded
// runtime the way the original's fork()/setsid()/fork() sequence does.
// Each stage re-execs the same binary with the same argv and the next
// stage number; the final stage is the one that keeps running.
const stageEnv = "REPMGRD_DAEMON_STAGE"

// Daemonize re-execs the current process twice, mirroring the
// original's fork() -> setsid() -> fork() sequence: the first re-exec
// detaches from the controlling terminal and becomes a session
// leader; the second ensures the running process is not itself a
// session leader (so it can never reacquire a controlling terminal on
// open). It chdirs to the directory containing configFile, matching
// the original's rationale that relative paths in the config keep
// resolving the same way after detach.
//
// Daemonize returns nil only in the final, long-running stage.
// Earlier stages exit(0) after launching the next stage; a launch
// failure at any stage exits with ExitSysFailure, matching the
// original's fork()/setsid() error handling.
func Daemonize(configFile string) error {
	switch os.Getenv(stageEnv) {
	case "":
		reexec(1, true)
	case "1":
		reexec(2, false)
	}

	dir := filepath.Dir(configFile)
	if dir == "" {
		dir = "/"
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("daemonize: chdir to %s: %w", dir, err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	syscall.Dup2(int(devNull.Fd()), int(os.Stdin.Fd()))
	syscall.Dup2(int(devNull.Fd()), int(os.Stdout.Fd()))

	return nil
}

// reexec launches the next daemonization stage and exits the current
// process. setsid requests a new session (stage 1 only, matching the
// original's single setsid() call between its two fork()s).
func reexec(stage int, setsid bool) {
	os.Setenv(stageEnv, strconv.Itoa(stage))
	attr := &syscall.ProcAttr{
		Env:   os.Environ(),
		Files: []uintptr{0, 1, 2},
	}
	if setsid {
		attr.Sys = &syscall.SysProcAttr{Setsid: true}
	}
	if _, err := syscall.ForkExec(os.Args[0], os.Args, attr); err != nil {
		fmt.Fprintf(os.Stderr, "error in fork(): %v\n", err)
		os.Exit(ExitSysFailure)
	}
	os.Exit(ExitSuccess)
}
