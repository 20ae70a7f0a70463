package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gend/internal/common/fsutil"
	"gend/pkg/types"
)

// LoadDir scans a directory and builds a model registry. Two layouts are
// recognized:
//
//   - a single *.gguf file is a model with one artifact;
//   - a subdirectory is a model whose regular files are its artifacts
//     (weights shards, tokenizer files), reported in name order.
//
// The model id is the file or directory name; artifact sizes drive the
// byte-level load-progress totals.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(abs, name)
		if e.IsDir() {
			arts, err := dirArtifacts(p)
			if err != nil {
				return nil, err
			}
			if len(arts) == 0 {
				continue
			}
			models = append(models, types.Model{ID: name, Name: name, Path: p, Artifacts: arts})
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		models = append(models, types.Model{
			ID:   name,
			Name: name,
			Path: p,
			Artifacts: []types.Artifact{
				{File: name, Path: p, SizeBytes: fi.Size()},
			},
		})
	}
	return models, nil
}

// dirArtifacts lists the regular files of a model directory in name order.
func dirArtifacts(dir string) ([]types.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}
	var arts []types.Artifact
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		arts = append(arts, types.Artifact{
			File:      e.Name(),
			Path:      filepath.Join(dir, e.Name()),
			SizeBytes: fi.Size(),
		})
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].File < arts[j].File })
	return arts, nil
}
