package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external binary vidqueue relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands containing a path separator must point at an executable file;
// bare names are resolved through PATH.
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
		resolved, err := resolveBinary(cmd)
		if err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the non-optional dependencies that are unavailable.
func MissingRequired(results []Status) []Status {
	var missing []Status
	for _, r := range results {
		if !r.Available && !r.Optional {
			missing = append(missing, r)
		}
	}
	return missing
}

// DescribeMissing renders missing dependencies as a single error message.
func DescribeMissing(missing []Status) error {
	if len(missing) == 0 {
		return nil
	}
	parts := make([]string, 0, len(missing))
	for _, m := range missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.Name, m.Detail))
	}
	return fmt.Errorf("missing required dependencies: %s", strings.Join(parts, ", "))
}

func resolveBinary(cmd string) (string, error) {
	if hasPathSeparator(cmd) {
		info, err := os.Stat(cmd)
		if err != nil {
			return "", fmt.Errorf("binary %q not found", cmd)
		}
		if !isExecutable(info) {
			return "", fmt.Errorf("binary %q is not executable", cmd)
		}
		return cmd, nil
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", cmd)
	}
	return path, nil
}
