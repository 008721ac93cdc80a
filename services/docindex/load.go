package docindex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadDocuments reads every markdown file under dir. Document ids are the
// slash-separated relative path without the extension, so re-indexing the same
// file replaces its vectors.
func LoadDocuments(dir string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

		doc, err := ParseDocument(id, string(data))
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load reference documents from %s: %w", dir, err)
	}
	return docs, nil
}
