package chunk

import (
	"fmt"
	"path/filepath"
)

// idWidth is the zero-padded width of a chunk file's numeric suffix.
const idWidth = 8

func fileName(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("q%0*d", idWidth, id))
}
