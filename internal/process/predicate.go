package process

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"db-health-agent/internal/config"
	"db-health-agent/internal/system"
)

// Predicate decides watch membership. Every configured criterion must match.
type Predicate struct {
	name    *regexp.Regexp
	cmdline *regexp.Regexp
	cgroup  *regexp.Regexp
	pids    map[int]struct{}
}

func NewPredicate(w config.WatchConfig) (*Predicate, error) {
	p := &Predicate{}
	var err error
	if p.name, err = compileOptional(w.NamePattern); err != nil {
		return nil, fmt.Errorf("watch name: %w", err)
	}
	if p.cmdline, err = compileOptional(w.CmdlinePattern); err != nil {
		return nil, fmt.Errorf("watch cmdline: %w", err)
	}
	if p.cgroup, err = compileOptional(w.CgroupPattern); err != nil {
		return nil, fmt.Errorf("watch cgroup: %w", err)
	}
	if len(w.PIDs) > 0 {
		p.pids = make(map[int]struct{}, len(w.PIDs))
		for _, pid := range w.PIDs {
			p.pids[pid] = struct{}{}
		}
	}
	if p.name == nil && p.cmdline == nil && p.cgroup == nil && p.pids == nil {
		return nil, fmt.Errorf("empty watch predicate")
	}
	return p, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// PIDsOnly reports whether the predicate is a plain pid list, which lets the scanner skip
// listing the whole process table.
func (p *Predicate) PIDsOnly() bool {
	return p.pids != nil && p.name == nil && p.cmdline == nil && p.cgroup == nil
}

func (p *Predicate) ListedPIDs() []int {
	out := make([]int, 0, len(p.pids))
	for pid := range p.pids {
		out = append(out, pid)
	}
	return out
}

// Match evaluates the predicate for one pid, reading only what the configured criteria need
// beyond comm. A pid that disappears while being examined does not match. A pid whose files
// exist but cannot be read is undecided and returned with an ErrUnreadable error.
func (p *Predicate) Match(ctx context.Context, fsys system.FS, pid int) (Candidate, bool, error) {
	c := Candidate{PID: pid}
	if p.pids != nil {
		if _, ok := p.pids[pid]; !ok {
			return c, false, nil
		}
	}
	dir := strconv.Itoa(pid)
	read := func(name string) ([]byte, bool, error) {
		raw, err := fsys.ReadFile(ctx, fsys.ProcPath(dir, name))
		switch {
		case err == nil:
			return raw, true, nil
		case ctx.Err() != nil, gone(err):
			return nil, false, nil
		default:
			return nil, false, fmt.Errorf("pid %d %s: %w", pid, name, readFailure(err))
		}
	}

	raw, ok, err := read("comm")
	if !ok {
		return c, false, err
	}
	c.Command = strings.TrimSpace(string(raw))
	if p.name != nil && !p.name.MatchString(c.Command) {
		return c, false, nil
	}
	if p.cmdline != nil {
		raw, ok, err := read("cmdline")
		if !ok {
			return c, false, err
		}
		cmdline := string(bytes.TrimSpace(bytes.ReplaceAll(raw, []byte{0}, []byte{' '})))
		if !p.cmdline.MatchString(cmdline) {
			return c, false, nil
		}
	}
	if p.cgroup != nil {
		raw, ok, err := read("cgroup")
		if !ok {
			return c, false, err
		}
		if !matchCgroup(p.cgroup, raw) {
			return c, false, nil
		}
	}
	return c, true, nil
}

// matchCgroup tests the pattern against the path column of every hierarchy line
// ("hierarchy-ID:controllers:path").
func matchCgroup(re *regexp.Regexp, raw []byte) bool {
	for _, line := range strings.Split(string(raw), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
		if len(parts) != 3 {
			continue
		}
		if re.MatchString(parts[2]) {
			return true
		}
	}
	return false
}
