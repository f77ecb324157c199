package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

const versionTimeout = 5 * time.Second

// Requirement defines an external binary ingest relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the binary to read its version
	// from the first output line.
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		if len(req.VersionArgs) > 0 {
			version, err := readVersion(resolved, req.VersionArgs)
			if err != nil {
				status.Detail = fmt.Sprintf("version check failed: %v", err)
			}
			status.Version = version
		}
		results = append(results, status)
	}
	return results
}

func readVersion(binary string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	out, err := commandContext(ctx, binary, args...).Output()
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return parseVersion(first), nil
}

// parseVersion extracts the token following "version" in lines such as
// "ffprobe version 7.0.2-static Copyright (c) 2007-2024". Lines without the
// keyword are returned trimmed.
func parseVersion(line string) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if strings.EqualFold(field, "version") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

// Missing returns the statuses of required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			out = append(out, status)
		}
	}
	return out
}

// FFProbe returns the requirement for the configured ffprobe binary.
func FFProbe(binary string) Requirement {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return Requirement{
		Name:        "FFprobe",
		Command:     binary,
		Description: "Required for asset discovery and packet listing",
		VersionArgs: []string{"-version"},
	}
}
