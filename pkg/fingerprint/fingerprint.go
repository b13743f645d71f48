package fingerprint

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
)

// DefaultExtensions are the data file types tracked by the lifecycle.
var DefaultExtensions = []string{".txt", ".md", ".json"}

// EmptyDigest is the digest of a directory that is absent or has no matching files.
var EmptyDigest = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// File is an ephemeral (path, digest) pair produced by a scan.
type File struct {
	Path    string
	RelPath string
	Digest  string
}

// HashFile returns the SHA-256 hex digest of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Scan hashes every file under dir whose extension is allowed and returns them
// sorted by slash-separated relative path. An absent directory yields no files.
func Scan(dir string, extensions []string) ([]File, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	allowed := extensionSet(extensions)
	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !allowed[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		digest, err := HashFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Digest:  digest,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

// ScanDirectory returns the absolute path to digest mapping for dir.
func ScanDirectory(dir string, extensions []string) (map[string]string, error) {
	files, err := Scan(dir, extensions)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(files))
	for _, f := range files {
		hashes[f.Path] = f.Digest
	}
	return hashes, nil
}

// HashDirectory returns a digest over the per-file digests of dir taken in
// relative-path order. Absent or empty directories hash to EmptyDigest.
func HashDirectory(dir string, extensions []string) (string, error) {
	files, err := Scan(dir, extensions)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, f := range files {
		io.WriteString(h, f.Digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extensionSet(extensions []string) map[string]bool {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}
