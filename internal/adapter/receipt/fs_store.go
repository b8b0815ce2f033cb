package receipt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// maxReceiptBytes is a hard cap on what gets written to disk, regardless of
// what the declared upload size said.
const maxReceiptBytes = 5 << 20

// FSStore keeps receipt images on the local filesystem and hands back the
// generated file name as the stable reference stored on the order.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Save(ctx context.Context, orderID, filename string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s%s", orderID, uuid.NewString(), filepath.Ext(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create receipt file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(content, maxReceiptBytes)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write receipt file: %w", err)
	}
	return name, nil
}
