package health

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// MaxLogAge is how old the log file may get before the process counts as
// hung.
const MaxLogAge = 10 * time.Minute

var ErrStale = errors.New("log file is stale")

// CheckLogFile fails when path is missing or was last written more than
// maxAge before now.
func CheckLogFile(path string, maxAge time.Duration, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("log file %s: %w", path, err)
	}
	if age := now.Sub(info.ModTime()); age > maxAge {
		return fmt.Errorf("%w: %s last written %s ago", ErrStale, path, age.Truncate(time.Second))
	}
	return nil
}
