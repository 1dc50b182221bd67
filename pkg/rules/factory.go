package rules

import "fmt"

// OpenStore selects a backend by name: "memory", "bolt" (boltPath) or
// "postgres" (dsn).
func OpenStore(backend, boltPath, dsn string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "bolt":
		return NewBoltStore(boltPath)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("rules: unknown store backend %q", backend)
	}
}
