package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/filex"
	"github.com/google/uuid"
)

const fileScheme = "file://"

// DirStore keeps blobs as files in a single directory and returns
// "file://<name>" references relative to it.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &DirStore{dir: dir}, nil
}

func (d *DirStore) Put(ctx context.Context, data []byte) (string, error) {
	name := uuid.NewString() + ".bin"
	if err := filex.AtomicWriteFile(filepath.Join(d.dir, name), data, 0o600); err != nil {
		return "", err
	}
	return fileScheme + name, nil
}

func (d *DirStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, fileScheme)
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("unsupported reference %q", ref)
	}
	b, err := os.ReadFile(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, common.ErrNotFound)
	}
	return b, err
}
