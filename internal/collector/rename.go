package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"genrep/internal/summary"
)

// Rename moves a local replay to its suggested name in the same directory.
// An existing file gets a _1, _2, ... suffix; a file that already carries
// its suggested name is left alone. It returns the new path.
func Rename(path string, report *summary.Report) (string, error) {
	base := report.SuggestedFileName
	if base == "" {
		return path, errors.New("report has no suggested name")
	}

	dir := filepath.Dir(path)
	target := filepath.Join(dir, base+".rep")
	for n := 1; ; n++ {
		if target == filepath.Clean(path) {
			return path, nil
		}
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = filepath.Join(dir, base+"_"+strconv.Itoa(n)+".rep")
	}

	if err := os.Rename(path, target); err != nil {
		return path, fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return target, nil
}
