package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameBytes = 255

	dirPermissions  = 0o755
	filePermissions = 0o644

	// maxSuffixAttempts bounds the -1, -2, ... search for a free file name.
	maxSuffixAttempts = 1000
)

// ValidateFolderName checks a new folder name: one path segment, no leading
// dot, at most 255 bytes, no control characters.
func ValidateFolderName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > maxNameBytes:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameBytes)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: contains a path separator", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: starts with a dot", ErrInvalidName)
	case !utf8.ValidString(name) || strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: contains control characters", ErrInvalidName)
	}
	return nil
}

// SanitizeFilename reduces a client-supplied upload name to a safe base
// name. Directory components are dropped and unusual characters become '_'.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "/" || name == "." {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidName)
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune("._-() ", r):
			b.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteByte('_')
		}
	}

	clean := strings.TrimLeft(strings.TrimSpace(b.String()), ". ")
	if clean == "" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidName)
	}
	if len(clean) > maxNameBytes {
		ext := path.Ext(clean)
		if len(ext) >= maxNameBytes {
			return "", fmt.Errorf("%w: extension too long", ErrInvalidName)
		}
		clean = truncateUTF8(strings.TrimSuffix(clean, ext), maxNameBytes-len(ext)) + ext
	}
	return clean, nil
}

func truncateUTF8(s string, n int) string {
	for len(s) > n {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// CreateFolder creates name inside the directory parentRel.
func (r *Resolver) CreateFolder(parentRel, name string) (Entry, error) {
	parent, err := r.ResolveUploadTarget(parentRel)
	if err != nil {
		return Entry{}, err
	}
	name = strings.TrimSpace(name)
	if err := ValidateFolderName(name); err != nil {
		return Entry{}, err
	}

	target := filepath.Join(parent, name)
	if err := os.Mkdir(target, dirPermissions); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Entry{}, ErrFolderExists
		}
		return Entry{}, fmt.Errorf("creating folder: %w", err)
	}

	r.logger.Info("folder created", "path", r.relativeTo(target))
	return Entry{Name: name, Type: KindFolder, RelativePath: r.relativeTo(target)}, nil
}

// SaveUpload writes src into the directory dirRel under a sanitised form of
// filename. An existing file is never replaced; a numeric suffix is added
// instead. At most maxBytes are accepted when maxBytes > 0.
func (r *Resolver) SaveUpload(ctx context.Context, dirRel, filename string, src io.Reader, maxBytes int64) (Entry, error) {
	dir, err := r.ResolveUploadTarget(dirRel)
	if err != nil {
		return Entry{}, err
	}

	name, err := SanitizeFilename(filename)
	if err != nil {
		return Entry{}, err
	}
	kind, ok := Classify(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnsupportedType, path.Ext(name))
	}

	f, finalName, err := createUnique(dir, name)
	if err != nil {
		return Entry{}, err
	}
	target := filepath.Join(dir, finalName)

	if err := copyLimited(ctx, f, src, maxBytes); err != nil {
		f.Close()         //nolint:errcheck // already failing
		os.Remove(target) //nolint:errcheck // partial upload
		return Entry{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(target) //nolint:errcheck // partial upload
		return Entry{}, fmt.Errorf("closing upload: %w", err)
	}

	rel := r.relativeTo(target)
	r.logger.Info("media uploaded", "path", rel)
	return Entry{Name: finalName, Type: kind, RelativePath: rel}, nil
}

// createUnique opens a new file named name, or name-1, name-2, ... if taken.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxSuffixAttempts; i++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("creating upload file: %w", err)
		}
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	return nil, "", fmt.Errorf("creating upload file: no free name for %s", name)
}

func copyLimited(ctx context.Context, dst io.Writer, src io.Reader, maxBytes int64) error {
	reader := io.Reader(&ctxReader{ctx: ctx, r: src})
	if maxBytes > 0 {
		reader = io.LimitReader(reader, maxBytes+1)
	}

	n, err := io.Copy(dst, reader)
	if err != nil {
		return fmt.Errorf("writing upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return ErrTooLarge
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
