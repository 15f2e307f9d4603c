package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileResolver serves lookups from an immutable credential → profile name
// table loaded once at startup. No I/O happens per call.
type FileResolver struct {
	table map[string]string
}

func NewFileResolver(path string) (*FileResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	table := make(map[string]string)
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	return &FileResolver{table: table}, nil
}

func (r *FileResolver) Resolve(_ context.Context, credential string) (string, bool) {
	name, ok := r.table[credential]
	return name, ok
}
