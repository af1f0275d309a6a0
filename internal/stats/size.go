package stats

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

// ErrSizeWalk is returned when the source tree cannot be walked.
var ErrSizeWalk = errors.New("size walk failed")

var sizeUnits = []string{"bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// DirSize sums the sizes of every file below root. Symbolic links are
// followed for files; linked directories are not descended.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSizeWalk, err)
	}
	return total, nil
}

// FormatSize renders a byte count with base-1024 units, rounded to a whole
// number. Halves round to even.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 bytes"
	}
	i := 0
	p := 1.0
	for i < len(sizeUnits)-1 && float64(n) >= p*1024 {
		p *= 1024
		i++
	}
	return fmt.Sprintf("%d %s", int64(math.RoundToEven(float64(n)/p)), sizeUnits[i])
}
