// Package hashguard fingerprints a data tree so that unreviewed edits to
// ontology or golden files show up as drift.
package hashguard

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/askgate/internal/fileutil"
)

// FileName is the fingerprint file written at the root of the tree.
const FileName = ".hash"

// Tree is the fingerprint of a directory.
type Tree struct {
	// Files maps slash-separated relative paths to SHA-256 hex digests.
	Files map[string]string `json:"files"`
	// Tree is the SHA-256 of the sorted "path:digest" lines joined by "\n".
	Tree string `json:"tree"`
}

// Build hashes every regular file under root except the fingerprint
// itself and temp files left by an interrupted Write.
func Build(root string) (*Tree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("hash root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hash root %s is not a directory", root)
	}

	tempPrefix := fileutil.TempPrefix(FileName)
	t := &Tree{Files: make(map[string]string)}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || d.Name() == FileName || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		t.Files[filepath.ToSlash(rel)] = sum
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", root, err)
	}
	t.Tree = aggregate(t.Files)
	return t, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func aggregate(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = p + ":" + files[p]
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Write builds the fingerprint of root and writes it to root/.hash.
func Write(root string) (*Tree, error) {
	t, err := Build(root)
	if err != nil {
		return nil, err
	}
	if err := fileutil.WriteJSON(filepath.Join(root, FileName), t); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads root/.hash.
func Load(root string) (*Tree, error) {
	var t Tree
	if err := fileutil.ReadJSON(filepath.Join(root, FileName), &t); err != nil {
		return nil, err
	}
	if t.Files == nil {
		t.Files = make(map[string]string)
	}
	return &t, nil
}

// Drift compares a recorded fingerprint with the current tree.
type Drift struct {
	Recorded string   `json:"recorded"`
	Current  string   `json:"current"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Changed  []string `json:"changed"`
}

// Clean reports whether the tree matches its fingerprint.
func (d *Drift) Clean() bool { return d.Recorded == d.Current }

// ErrNoFingerprint is returned by Check when root has no .hash.
var ErrNoFingerprint = errors.New("no fingerprint recorded")

// Check compares root against its recorded fingerprint.
func Check(root string) (*Drift, error) {
	if _, err := os.Stat(filepath.Join(root, FileName)); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w; run `askgate hashguard write`", root, ErrNoFingerprint)
	}
	recorded, err := Load(root)
	if err != nil {
		return nil, err
	}
	current, err := Build(root)
	if err != nil {
		return nil, err
	}

	d := &Drift{Recorded: recorded.Tree, Current: current.Tree}
	for p, sum := range current.Files {
		old, ok := recorded.Files[p]
		switch {
		case !ok:
			d.Added = append(d.Added, p)
		case old != sum:
			d.Changed = append(d.Changed, p)
		}
	}
	for p := range recorded.Files {
		if _, ok := current.Files[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d, nil
}
