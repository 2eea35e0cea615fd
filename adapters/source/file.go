package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
	"github.com/Skryldev/imagefetch/utils"
)

// File reads resources from the local filesystem.  Resource URLs are either
// file:// URLs or paths; relative paths resolve against Root.
type File struct {
	Root      string
	ChunkSize int
}

// NewFile returns a File source rooted at root.
func NewFile(root string) *File {
	return &File{Root: root}
}

func (f *File) Fetch(ctx context.Context, res core.Resource, onProgress func(completed, total int64)) ([]byte, error) {
	path, err := f.resolve(res.URL)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "file.resolve", err)
	}

	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryFetch, "file.open",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, path))
		}
		return nil, apperrors.New(apperrors.CategoryFetch, "file.open", err)
	}
	defer fh.Close()

	total := int64(-1)
	if st, err := fh.Stat(); err == nil {
		total = st.Size()
	}

	buf, err := utils.DrainReaderProgress(ctx, fh, f.ChunkSize, total, onProgress)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, "file.read", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}

func (f *File) resolve(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty resource location")
	}
	p := raw
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		p = u.Path
	}
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	return filepath.Clean(p), nil
}

var _ core.ByteSource = (*File)(nil)
