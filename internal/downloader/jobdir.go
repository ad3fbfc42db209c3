package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const pageExt = ".jpg"

// jobDir is the scratch directory of one crawl: {temp}/{jobID}/{n}.jpg.
type jobDir struct {
	path string
}

func newJobDir(root, id string) (*jobDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	p := filepath.Join(root, id)
	if err := os.Mkdir(p, 0o755); err != nil {
		return nil, fmt.Errorf("creating job directory: %w", err)
	}
	return &jobDir{path: p}, nil
}

func (j *jobDir) pagePath(n int) string {
	return filepath.Join(j.path, strconv.Itoa(n)+pageExt)
}

func (j *jobDir) writePage(n int, data []byte) error {
	if err := os.WriteFile(j.pagePath(n), data, 0o644); err != nil {
		return fmt.Errorf("writing page %d: %w", n, err)
	}
	return nil
}

// pages lists the stored page files in ascending page number.
func (j *jobDir) pages() ([]string, error) {
	entries, err := os.ReadDir(j.path)
	if err != nil {
		return nil, fmt.Errorf("listing job directory: %w", err)
	}

	type page struct {
		n    int
		path string
	}
	var found []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pageExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, pageExt))
		if err != nil {
			continue
		}
		found = append(found, page{n: n, path: filepath.Join(j.path, name)})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].n < found[b].n })

	out := make([]string, len(found))
	for i, p := range found {
		out[i] = p.path
	}
	return out, nil
}

func (j *jobDir) remove() error {
	return os.RemoveAll(j.path)
}
