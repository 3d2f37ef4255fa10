package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
)

// ParseTaskArg parses the task name of /run.
func ParseTaskArg(args string) (monitor.Task, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("usage: /run <full|relevant|historical|continuous>")
	}
	task, err := monitor.ParseTask(strings.ToLower(parts[0]))
	if err != nil {
		return "", fmt.Errorf("unknown task %q, use: full, relevant, historical, continuous", parts[0])
	}
	return task, nil
}

// ParseLimitArg parses an optional item count, returning def when args is
// empty.
func ParseLimitArg(args string, def, maxN int) (int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 1 || n > maxN {
		return 0, fmt.Errorf("count must be between 1 and %d", maxN)
	}
	return n, nil
}
