package preflight

import (
	"fmt"

	"ingest/internal/config"
	"ingest/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the preflight checks for the given config and, when
// assetPath is set, the asset itself.
func RunAll(cfg *config.Config, assetPath string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// State directory (always checked)
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	// Log directory (when configured)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	for _, status := range deps.CheckBinaries([]deps.Requirement{deps.FFProbe(cfg.Probe.FFProbeBinary)}) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
		switch {
		case !status.Available:
			result.Detail = status.Detail
		case status.Version != "":
			result.Detail = fmt.Sprintf("%s (version %s)", status.Command, status.Version)
		}
		results = append(results, result)
	}

	if assetPath != "" {
		results = append(results, CheckAssetReadable("Asset", assetPath))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
