package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// GenerateAndSaveGalleryTree walks the destination root and writes a text tree of its
// blog/category/post folders to outputFilePath. Files are not listed one by one; each
// folder line carries the number of files directly inside it.
func GenerateAndSaveGalleryTree(targetDir, outputFilePath string, log *logrus.Entry) error {
	log.Debugf("Starting gallery tree generation for target: %s", targetDir)
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return fmt.Errorf("target directory '%s' does not exist: %w", targetDir, err)
	} else if err != nil {
		return fmt.Errorf("error checking target directory '%s': %w", targetDir, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if err := WriteGalleryTree(writer, targetDir, log); err != nil {
		log.Errorf("Error occurred during gallery walk for '%s': %v", targetDir, err)
		return fmt.Errorf("error generating gallery tree for '%s': %w", targetDir, err)
	}
	return nil
}

// WriteGalleryTree writes the tree for targetDir to writer.
func WriteGalleryTree(writer io.Writer, targetDir string, log *logrus.Entry) error {
	if _, err := fmt.Fprintf(writer, "Gallery Structure for: %s\n", targetDir); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "%s\n\n", strings.Repeat("=", 23+len(targetDir))); err != nil {
		return err
	}

	files, err := countFiles(targetDir)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "%s/%s\n", filepath.Base(targetDir), fileSuffix(files)); err != nil {
		return err
	}
	return walkGalleryDir(writer, targetDir, "", log)
}

// walkGalleryDir writes one line per subdirectory and recurses into it
func walkGalleryDir(writer io.Writer, dirPath string, currentIndent string, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	dirs := slices.DeleteFunc(entries, func(e os.DirEntry) bool { return !e.IsDir() })
	slices.SortFunc(dirs, func(a, b os.DirEntry) int {
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range dirs {
		isLast := i == len(dirs)-1

		connector := entryPrefix
		if isLast {
			connector = lastEntryPrefix
		}

		subDirPath := filepath.Join(dirPath, entry.Name())
		files, err := countFiles(subDirPath)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(writer, "%s%s%s/%s\n", currentIndent, connector, entry.Name(), fileSuffix(files)); err != nil {
			log.Errorf("Error writing entry '%s' to output: %v", entry.Name(), err)
			return err
		}

		nextIndent := currentIndent + verticalLine
		if isLast {
			nextIndent = currentIndent + indentPrefix
		}
		if err := walkGalleryDir(writer, subDirPath, nextIndent, log); err != nil {
			return err
		}
	}
	return nil
}

func countFiles(dirPath string) (int, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

func fileSuffix(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return " (1 file)"
	}
	return fmt.Sprintf(" (%d files)", n)
}
