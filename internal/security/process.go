package security

import (
	"fmt"
	"os"
)

// ProcessState summarizes the security-relevant identity of the agent process.
type ProcessState struct {
	PID    int  `json:"pid"`
	UID    int  `json:"uid"`
	EUID   int  `json:"euid"`
	IsRoot bool `json:"is_root"`

	Warnings []string `json:"warnings,omitempty"`
}

// CaptureProcessState captures the current process identity.
func CaptureProcessState() *ProcessState {
	state := &ProcessState{
		PID:    os.Getpid(),
		UID:    os.Getuid(),
		EUID:   os.Geteuid(),
		IsRoot: os.Geteuid() == 0,
	}
	if state.IsRoot {
		state.Warnings = append(state.Warnings, "running as root; the salt and socket will be owned by root")
	}
	if checkTraced() {
		state.Warnings = append(state.Warnings, "process is being traced; the device salt may be exposed")
	}
	return state
}

// Harden applies process-wide protections for a daemon that holds the device
// salt in memory: a restrictive umask so every file it creates is owner-only,
// and disabled core dumps. It returns the captured state with any warnings.
func Harden() (*ProcessState, error) {
	setUmask(0077)
	if err := disableCoreDumps(); err != nil {
		return CaptureProcessState(), fmt.Errorf("disable core dumps: %w", err)
	}
	return CaptureProcessState(), nil
}
