// Package presence answers whether the debugger software is running on this
// workstation, either by process name or by probing its API port.
package presence

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessChecker reports presence when a process with Name is running.
// Matching ignores case and a trailing ".exe".
type ProcessChecker struct {
	Name string

	// list defaults to the gopsutil process table.
	list func(ctx context.Context) ([]string, error)
}

func NewProcessChecker(name string) *ProcessChecker {
	return &ProcessChecker{Name: name}
}

func (c *ProcessChecker) IsPresent(ctx context.Context) (bool, error) {
	names, err := c.names(ctx)
	if err != nil {
		return false, err
	}
	want := normalize(c.Name)
	for _, n := range names {
		if normalize(n) == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *ProcessChecker) String() string { return "process " + c.Name }

func (c *ProcessChecker) names(ctx context.Context) ([]string, error) {
	if c.list != nil {
		return c.list(ctx)
	}
	return processNames(ctx)
}

func processNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("presence: list processes: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// Processes can exit between listing and lookup.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func normalize(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}

// CountInstances returns how many running processes are named name.
func CountInstances(ctx context.Context, name string) (int, error) {
	names, err := processNames(ctx)
	if err != nil {
		return 0, err
	}
	return countMatching(names, name), nil
}

func countMatching(names []string, name string) int {
	want := normalize(name)
	n := 0
	for _, got := range names {
		if normalize(got) == want {
			n++
		}
	}
	return n
}

// PortChecker reports presence when a TCP connection to Address:Port
// succeeds within Timeout.
type PortChecker struct {
	Address string
	Port    int
	Timeout time.Duration
}

func (c *PortChecker) IsPresent(ctx context.Context) (bool, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// A refused or unreachable port simply means absent.
		return false, nil
	}
	conn.Close()
	return true, nil
}

func (c *PortChecker) String() string { return "port " + c.addr() }

func (c *PortChecker) addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}
