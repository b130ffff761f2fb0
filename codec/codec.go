// Package codec defines the serialization codec contract (§6) and a
// process-wide name/content-type registry (C10).
//
// Concrete codecs for MessagePack, Protocol Buffers, and columnar table
// IPC are out of scope (§1) — only the contract and the registry that
// would hold third-party implementations of it live here. The JSON codec
// below is the one concrete in-scope implementation, used as the control
// channel's default.
package codec

import (
	"fmt"
	"sync"

	"github.com/sebastianwebdev/procwire/internal/xerr"
)

// Codec is the serialization codec contract: a stateless, synchronous
// pair of pure functions with a stable name and content type.
type Codec interface {
	Name() string
	ContentType() string
	Serialize(v any) ([]byte, error)
	Deserialize(b []byte) (any, error)
}

// Registry is a process-wide name -> codec and content-type -> codec
// index. Mutations are expected to happen once at startup (§5 shared
// resource policy); the registry itself only serializes access, it does
// not enforce the call-site discipline.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]Codec
	byContentTy map[string]Codec
}

// NewRegistry returns an empty registry. Most applications use the
// package-level Default registry instead of constructing their own.
func NewRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]Codec),
		byContentTy: make(map[string]Codec),
	}
}

// Register adds codec to the registry. It rejects a duplicate name or a
// duplicate content type, naming the existing registrant.
func (r *Registry) Register(c Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[c.Name()]; ok {
		return fmt.Errorf("codec: name %q already registered by %q", c.Name(), existing.Name())
	}
	if existing, ok := r.byContentTy[c.ContentType()]; ok {
		return fmt.Errorf("codec: content type %q already registered by %q", c.ContentType(), existing.Name())
	}
	r.byName[c.Name()] = c
	r.byContentTy[c.ContentType()] = c
	return nil
}

// Unregister removes the codec registered under name, reporting whether
// anything was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	delete(r.byContentTy, c.ContentType())
	return true
}

// List returns a fresh copy of the registered codec names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Get looks a codec up by its registered name.
func (r *Registry) Get(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// GetByContentType looks a codec up by its wire content type.
func (r *Registry) GetByContentType(ct string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byContentTy[ct]
	return c, ok
}

// ResetForTests clears every registration; intended for test teardown
// only, matching the teacher's own resetForTests idiom for process-wide
// stores.
func (r *Registry) ResetForTests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]Codec)
	r.byContentTy = make(map[string]Codec)
}

// Default is the process-wide registry pre-populated with JSON. Mutate it
// only at application startup (§5).
var Default = NewRegistry()

func init() {
	if err := Default.Register(NewJSON()); err != nil {
		panic(err)
	}
}

// wrapSerErr gives every codec a consistently typed failure.
func wrapSerErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return xerr.NewSerializationError(name, err)
}
