package vectorstore

import "fmt"

// Type selects a Store implementation.
type Type string

// Supported store types.
const (
	TypeChromem Type = "chromem"
	TypeQdrant  Type = "qdrant"
	TypeBolt    Type = "bolt"
	TypeMemory  Type = "memory"
)

// Valid reports whether t names a supported store.
func (t Type) Valid() bool {
	switch t {
	case TypeChromem, TypeQdrant, TypeBolt, TypeMemory:
		return true
	}
	return false
}

// Config selects and configures a Store.
type Config struct {
	Type    Type          `yaml:"type"`
	Chromem ChromemConfig `yaml:"chromem"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Bolt    BoltConfig    `yaml:"bolt"`
}

// New builds the Store selected by cfg.Type. An empty type means chromem.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeChromem, "":
		return NewChromem(cfg.Chromem)
	case TypeQdrant:
		return NewQdrant(cfg.Qdrant)
	case TypeBolt:
		return NewBolt(cfg.Bolt)
	case TypeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", ErrInvalidArgument, cfg.Type)
	}
}
