// Package export flattens converted documents into fixed-layout buffers for
// consumers on the other side of a process or runtime boundary.
package export

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/pssgconv/pkg/convert"
	"github.com/Faultbox/pssgconv/pkg/mesh"
)

// Export errors.
var (
	ErrReleased      = errors.New("snapshot already released")
	ErrUnknownHandle = errors.New("unknown snapshot handle")
)

// ObjectBuffers is one object in flat form: three floats per position, two
// per texture coordinate and three indices per triangle.
type ObjectBuffers struct {
	Positions    []float32
	PositionsLen int
	UVs          []float32
	UVsLen       int
	Indices      []uint64
	IndicesLen   int
	Translation  [3]float32
}

// Snapshot is a flattened, self-contained copy of a converted document.
type Snapshot struct {
	Objects []ObjectBuffers
}

// Len returns the number of objects.
func (s *Snapshot) Len() int {
	return len(s.Objects)
}

// NewSnapshot flattens objects. The snapshot shares no memory with them.
func NewSnapshot(objects []*mesh.Object) *Snapshot {
	snap := &Snapshot{Objects: make([]ObjectBuffers, len(objects))}
	for i, o := range objects {
		b := &snap.Objects[i]

		b.Positions = make([]float32, 0, 3*len(o.Vertices))
		for _, v := range o.Vertices {
			b.Positions = append(b.Positions, v.X, v.Y, v.Z)
		}
		b.UVs = make([]float32, 0, 2*len(o.UVs))
		for _, uv := range o.UVs {
			b.UVs = append(b.UVs, uv.X, uv.Y)
		}
		b.Indices = make([]uint64, 0, 3*len(o.Faces))
		for _, f := range o.Faces {
			b.Indices = append(b.Indices, uint64(f[0]), uint64(f[1]), uint64(f[2]))
		}

		b.PositionsLen = len(b.Positions)
		b.UVsLen = len(b.UVs)
		b.IndicesLen = len(b.Indices)
		b.Translation = o.Translation.Array()
	}
	return snap
}

// Handle identifies a live snapshot. The zero Handle is the null handle.
type Handle uuid.UUID

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool {
	return uuid.UUID(h) == uuid.Nil
}

// String returns the handle in canonical UUID form.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// DefaultReleasedHistory is how many released handles a registry remembers
// for reporting ErrReleased. Older handles report ErrUnknownHandle.
const DefaultReleasedHistory = 4096

// Registry owns snapshots handed across the boundary until they are released.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	live     map[Handle]*Snapshot
	released map[Handle]struct{}
	order    []Handle // released handles, oldest first
	history  int
	opts     convert.Options
}

// NewRegistry returns an empty registry that converts with opts. The
// failure policy is forced to abort: a snapshot is all or nothing.
func NewRegistry(opts convert.Options) *Registry {
	opts.Policy = convert.PolicyAbort
	return &Registry{
		live:     make(map[Handle]*Snapshot),
		released: make(map[Handle]struct{}),
		history:  DefaultReleasedHistory,
		opts:     opts,
	}
}

// Open converts the document at path and registers the snapshot. On failure
// it returns the null handle and the error.
func (r *Registry) Open(path string) (Handle, error) {
	entity, err := convert.Load(path, r.opts)
	if err != nil {
		return Handle{}, err
	}
	return r.Register(NewSnapshot(entity.Objects)), nil
}

// Register takes ownership of snap and returns its handle.
func (r *Registry) Register(snap *Snapshot) Handle {
	h := Handle(uuid.New())

	r.mu.Lock()
	r.live[h] = snap
	r.mu.Unlock()

	r.logger().Debug("snapshot registered", zap.Stringer("handle", h), zap.Int("objects", snap.Len()))
	return h
}

// Get returns the live snapshot for h.
func (r *Registry) Get(h Handle) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(h)
}

// Release frees the snapshot behind h. Releasing the null handle is a no-op;
// releasing a handle twice returns ErrReleased while h is still within the
// registry's released history.
func (r *Registry) Release(h Handle) error {
	if h.IsZero() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.lookup(h); err != nil {
		return err
	}
	delete(r.live, h)
	r.remember(h)

	r.logger().Debug("snapshot released", zap.Stringer("handle", h))
	return nil
}

// Live returns the number of snapshots not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// remember records h as released, forgetting the oldest entry once the
// history is full.
func (r *Registry) remember(h Handle) {
	r.released[h] = struct{}{}
	r.order = append(r.order, h)
	for len(r.order) > r.history {
		delete(r.released, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *Registry) lookup(h Handle) (*Snapshot, error) {
	if snap, ok := r.live[h]; ok {
		return snap, nil
	}
	if _, ok := r.released[h]; ok {
		return nil, ErrReleased
	}
	return nil, ErrUnknownHandle
}

func (r *Registry) logger() *zap.Logger {
	if r.opts.Logger == nil {
		return zap.NewNop()
	}
	return r.opts.Logger
}
