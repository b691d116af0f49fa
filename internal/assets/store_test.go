package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_SanitizesHintAndWritesFile(t *testing.T) {
	root := t.TempDir()
	store := NewDiskStore(root)

	ref, err := store.Save("entry-kits", "Cannes  Lions", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(ref, "/uploads/entry-kits/cannes-lions-") || !strings.HasSuffix(ref, ".pdf") {
		t.Fatalf("unexpected reference %q", ref)
	}

	data, err := os.ReadFile(filepath.Join(root, strings.TrimPrefix(ref, "/uploads/")))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestSave_EmptyHintStillNames(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	ref, err := store.Save("projects", "   ", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(ref, "/uploads/projects/upload-") {
		t.Fatalf("unexpected reference %q", ref)
	}
}
