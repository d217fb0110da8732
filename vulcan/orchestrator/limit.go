package orchestrator

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseLimit parses a parallelism string into a job cap.
// Supports:
// - Empty string: one job per endpoint slot
// - "1": serial execution
// - "5": 5 jobs at a time
// - "40%": 40% of the endpoint slots at a time
func ParseLimit(parallelism string, totalSlots int) (int, error) {
	if parallelism == "" {
		return totalSlots, nil
	}

	if strings.HasSuffix(parallelism, "%") {
		percentStr := strings.TrimSuffix(parallelism, "%")
		percent, err := strconv.ParseFloat(percentStr, 64)
		if err != nil {
			return 0, errors.Errorf("invalid percentage format: %s", parallelism)
		}

		if percent <= 0 || percent > 100 {
			return 0, errors.Errorf("percentage must be between 0 and 100, got: %.2f", percent)
		}

		count := int(float64(totalSlots) * (percent / 100.0))
		if count < 1 {
			count = 1
		}
		return count, nil
	}

	count, err := strconv.Atoi(parallelism)
	if err != nil {
		return 0, errors.Errorf("invalid parallelism format: %s (expected number or percentage)", parallelism)
	}
	if count < 1 {
		return 0, errors.Errorf("parallelism must be at least 1, got: %d", count)
	}

	return count, nil
}
