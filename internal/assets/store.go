package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Store persists uploaded documents and hands back a stable reference that is
// later served verbatim to clients.
type Store interface {
	Save(kind string, nameHint string, data []byte) (string, error)
}

// DiskStore writes assets under root/<kind>/ and returns web-style
// "/uploads/<kind>/<file>" references.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

var nonWord = regexp.MustCompile(`\s+`)

func sanitizeHint(hint string) string {
	s := strings.ToLower(strings.TrimSpace(hint))
	s = nonWord.ReplaceAllString(s, "-")
	if s == "" {
		s = "upload"
	}
	return s
}

// Save names the file from the hint plus the current epoch millis, so repeat
// uploads of the same award never collide on disk.
func (d *DiskStore) Save(kind string, nameHint string, data []byte) (string, error) {
	dir := filepath.Join(d.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("assets: mkdir %s: %w", dir, err)
	}

	filename := fmt.Sprintf("%s-%d.pdf", sanitizeHint(nameHint), time.Now().UnixMilli())
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("assets: write %s: %w", filename, err)
	}

	return "/uploads/" + kind + "/" + filename, nil
}
