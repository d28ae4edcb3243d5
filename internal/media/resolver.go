package media

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Resolver maps client-relative paths onto the media root.
type Resolver struct {
	root   string // canonical, absolute
	logger *slog.Logger
	lang   language.Tag
}

// NewResolver canonicalises root, which must be an existing directory.
// logger may be nil.
func NewResolver(root string, logger *slog.Logger) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving media root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving media root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("checking media root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %s is not a directory", canonical)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{root: canonical, logger: logger, lang: language.Und}, nil
}

// Root returns the canonical media root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the canonical absolute path of rel. The lexical checks run
// before any filesystem call. An empty rel is the root itself.
func (r *Resolver) Resolve(rel string) (string, error) {
	clean, err := r.cleanRelative(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(r.root, filepath.FromSlash(clean))
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", r.reject(rel, ReasonNotFound, err)
	}
	if !r.within(canonical) {
		return "", r.reject(rel, ReasonOutsideRoot, nil)
	}
	return canonical, nil
}

// cleanRelative applies the lexical checks and returns rel in clean
// slash-separated form without a leading slash.
func (r *Resolver) cleanRelative(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", r.reject(rel, ReasonNullByte, nil)
	}
	if strings.ContainsRune(rel, '\\') {
		return "", r.reject(rel, ReasonSeparator, nil)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", r.reject(rel, ReasonTraversal, nil)
		}
	}

	clean := path.Clean("/" + rel)
	return strings.TrimPrefix(clean, "/"), nil
}

// within reports whether canonical is the root or below it.
func (r *Resolver) within(canonical string) bool {
	if canonical == r.root {
		return true
	}
	return strings.HasPrefix(canonical, r.root+string(filepath.Separator))
}

// relativeTo returns abs relative to the root in slash form, "" for the root.
func (r *Resolver) relativeTo(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (r *Resolver) reject(rel, reason string, err error) error {
	r.logger.Warn("media path rejected", "path", rel, "reason", reason)
	return &PathError{Path: rel, Reason: reason, Err: err}
}

// ResolveDir resolves rel and requires a directory.
func (r *Resolver) ResolveDir(rel string) (string, error) {
	abs, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", r.reject(rel, ReasonNotDir, err)
	}
	return abs, nil
}

// ResolveMediaFile resolves rel and requires a regular file with a media
// extension.
func (r *Resolver) ResolveMediaFile(rel string) (string, error) {
	abs, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", r.reject(rel, ReasonNotMedia, err)
	}
	if _, ok := Classify(abs); !ok {
		return "", r.reject(rel, ReasonNotMedia, nil)
	}
	return abs, nil
}

// ResolveUploadTarget resolves the directory uploads and new folders go into.
func (r *Resolver) ResolveUploadTarget(rel string) (string, error) {
	return r.ResolveDir(rel)
}

// Browse lists the directory rel. The directory read runs off the calling
// goroutine and is abandoned if ctx ends first.
func (r *Resolver) Browse(ctx context.Context, rel string) (*Listing, error) {
	dir, err := r.ResolveDir(rel)
	if err != nil {
		return nil, err
	}

	entries, err := readDir(ctx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, r.reject(rel, ReasonNotFound, err)
	}

	current := r.relativeTo(dir)
	listing := &Listing{
		CurrentPath: current,
		Folders:     []Entry{},
		Files:       []Entry{},
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		kind, ok := r.classifyEntry(dir, e)
		if !ok {
			continue
		}
		entry := Entry{Name: name, Type: kind, RelativePath: path.Join(current, name)}
		if kind == KindFolder {
			listing.Folders = append(listing.Folders, entry)
		} else {
			listing.Files = append(listing.Files, entry)
		}
	}

	r.sortEntries(listing.Folders)
	r.sortEntries(listing.Files)
	return listing, nil
}

// classifyEntry decides whether e is shown and as what. Symlinks are
// followed only when their target stays inside the root.
func (r *Resolver) classifyEntry(dir string, e fs.DirEntry) (Kind, bool) {
	mode := e.Type()

	if mode&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(filepath.Join(dir, e.Name()))
		if err != nil || !r.within(target) {
			return "", false
		}
		info, err := os.Stat(target)
		if err != nil {
			return "", false
		}
		mode = info.Mode().Type()
	}

	switch {
	case mode.IsDir():
		return KindFolder, true
	case mode.IsRegular():
		return Classify(e.Name())
	default:
		return "", false
	}
}

// sortEntries orders entries alphabetically, case-insensitively. A collator
// is not safe for concurrent use, so each call builds its own.
func (r *Resolver) sortEntries(entries []Entry) {
	c := collate.New(r.lang, collate.IgnoreCase)
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := c.CompareString(entries[i].Name, entries[j].Name); cmp != 0 {
			return cmp < 0
		}
		return entries[i].Name < entries[j].Name
	})
}

func readDir(ctx context.Context, dir string) ([]os.DirEntry, error) {
	type result struct {
		entries []os.DirEntry
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		entries, err := os.ReadDir(dir)
		ch <- result{entries, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.entries, res.err
	}
}
