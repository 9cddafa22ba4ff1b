package sim

import (
	"fmt"
	"path/filepath"
)

func vizPath(dir, prefix string, epoch int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_epoch_%04d.%s", prefix, epoch, ext))
}
