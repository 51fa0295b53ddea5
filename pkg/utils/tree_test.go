package utils

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// testTreeLogger returns a logger that discards output
func testTreeLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func mkGallery(t *testing.T, root string, rel string, files int) {
	t.Helper()
	dir := filepath.Join(root, rel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	for i := 0; i < files; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".jpg")
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func TestWriteGalleryTree_CountsFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dest")
	mkGallery(t, root, "Blog/Travel/Day 1", 3)
	mkGallery(t, root, "Blog/Travel/Day 2", 1)
	mkGallery(t, root, "Blog/Food", 0)

	var buf bytes.Buffer
	if err := WriteGalleryTree(&buf, root, testTreeLogger()); err != nil {
		t.Fatalf("WriteGalleryTree() error = %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"dest/\n",
		"└── Blog/\n",
		"    ├── Food/\n",
		"    └── Travel/\n",
		"        ├── Day 1/ (3 files)\n",
		"        └── Day 2/ (1 file)\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, ".jpg") {
		t.Errorf("Output should not list individual files:\n%s", output)
	}
}

func TestGenerateAndSaveGalleryTree_WritesFile(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "dest")
	mkGallery(t, root, "Blog/Cat/Post", 2)

	outputFile := filepath.Join(tmpDir, "tree.txt")
	if err := GenerateAndSaveGalleryTree(root, outputFile, testTreeLogger()); err != nil {
		t.Fatalf("GenerateAndSaveGalleryTree() error = %v", err)
	}
	content, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	if !strings.Contains(string(content), "Post/ (2 files)") {
		t.Errorf("Output missing post folder: %s", content)
	}
}

func TestGenerateAndSaveGalleryTree_MissingTarget(t *testing.T) {
	tmpDir := t.TempDir()
	err := GenerateAndSaveGalleryTree(filepath.Join(tmpDir, "nope"), filepath.Join(tmpDir, "tree.txt"), testTreeLogger())
	if err == nil {
		t.Fatal("Expected error for missing target directory")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
