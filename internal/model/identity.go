package model

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentityKey distinguishes process instances across PID reuse: two observations belong to the
// same instance only when both the pid and the kernel start time (in clock ticks since boot) match.
type IdentityKey struct {
	PID        int    `json:"pid"`
	StartTicks uint64 `json:"start_ticks"`
}

func (k IdentityKey) String() string {
	return strconv.Itoa(k.PID) + "@" + strconv.FormatUint(k.StartTicks, 10)
}

func (k IdentityKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *IdentityKey) UnmarshalText(text []byte) error {
	pidRaw, startRaw, ok := strings.Cut(string(text), "@")
	if !ok {
		return fmt.Errorf("identity key %q: missing separator", text)
	}
	pid, err := strconv.Atoi(pidRaw)
	if err != nil {
		return fmt.Errorf("identity key %q: pid: %w", text, err)
	}
	start, err := strconv.ParseUint(startRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("identity key %q: start: %w", text, err)
	}
	k.PID = pid
	k.StartTicks = start
	return nil
}
