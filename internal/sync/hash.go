package sync

import "fmt"

// HashStrategy derives the identity hash compared by the diff step.
// Local and remote listings must use the same strategy.
type HashStrategy interface {
	Hash(name string, size int64, etag string) string
}

// NameSizeHash is the default weak identity "{name}-{size}"
type NameSizeHash struct{}

func (NameSizeHash) Hash(name string, size int64, _ string) string {
	return fmt.Sprintf("%s-%d", name, size)
}

// ETagHash uses the server ETag when one is known and falls back to NameSizeHash
type ETagHash struct{}

func (ETagHash) Hash(name string, size int64, etag string) string {
	if etag != "" {
		return etag
	}
	return NameSizeHash{}.Hash(name, size, "")
}

// HashStrategyByName returns the strategy registered under name ("name_size" or "etag")
func HashStrategyByName(name string) (HashStrategy, error) {
	switch name {
	case "", "name_size":
		return NameSizeHash{}, nil
	case "etag":
		return ETagHash{}, nil
	}
	return nil, ValidationError("hash strategy", fmt.Errorf("unknown strategy %q", name))
}
