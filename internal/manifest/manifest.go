package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/model"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Config is the immutable configuration of an index.
type Config struct {
	Dims           int
	BufferCapacity int
	LeafCapacity   int
	Fanout         int
	GrowthFactor   int
	SplitPolicy    uint8
	Compression    uint8
}

// Manifest describes the persisted state of an index.
type Manifest struct {
	Version       int
	ID            uint64
	CreatedAt     time.Time
	IndexID       uuid.UUID
	Config        Config
	NextSegmentID model.SegmentID
	Levels        []LevelInfo
	Tombstones    TombstoneInfo
}

// LevelInfo describes the segment occupying one level.
type LevelInfo struct {
	Level     int
	SegmentID model.SegmentID
	Path      string
	// Root is the address of the segment's root block.
	Root       uint32
	PointCount uint64
	Size       int64
	BBox       model.Box
}

// TombstoneInfo locates the persisted tombstone sets.
type TombstoneInfo struct {
	Path string
}

// New creates an empty manifest for a new index.
func New(cfg Config) *Manifest {
	return &Manifest{
		Version:       CurrentVersion,
		CreatedAt:     time.Now(),
		IndexID:       uuid.New(),
		Config:        cfg,
		NextSegmentID: 1,
	}
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Levels = make([]LevelInfo, len(m.Levels))
	for i, l := range m.Levels {
		l.BBox = append(model.Box(nil), l.BBox...)
		c.Levels[i] = l
	}
	return &c
}

// Level returns the info for level l.
func (m *Manifest) Level(l int) (LevelInfo, bool) {
	for _, info := range m.Levels {
		if info.Level == l {
			return info, true
		}
	}
	return LevelInfo{}, false
}

// TotalPoints returns the number of points stored across all levels.
func (m *Manifest) TotalPoints() uint64 {
	var n uint64
	for _, l := range m.Levels {
		n += l.PointCount
	}
	return n
}

// FileName returns the blob name of manifest version id.
func FileName(id uint64) string {
	return fmt.Sprintf("%s-%06d.bin", ManifestFileName, id)
}

// ParseFileName extracts the version id from a manifest blob name.
func ParseFileName(name string) (uint64, bool) {
	base := path.Base(name)
	if !strings.HasPrefix(base, ManifestFileName+"-") || path.Ext(base) != ".bin" {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(base, ManifestFileName+"-"), ".bin"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Store manages manifest blobs and the CURRENT pointer.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load loads the manifest CURRENT points to.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	return s.LoadVersion(ctx, 0)
}

// LoadVersion loads a specific version. 0 means the current one.
func (s *Store) LoadVersion(ctx context.Context, versionID uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := FileName(versionID)
	if versionID == 0 {
		content, err := blobstore.ReadFile(ctx, s.store, CurrentFileName)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		name = strings.TrimSpace(string(content))
	}

	data, err := blobstore.ReadFile(ctx, s.store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open manifest %s: %w", name, err)
	}
	return ReadBinary(bytes.NewReader(data))
}

// ListVersions returns the ids of all stored manifest versions, ascending.
func (s *Store) ListVersions(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.store.List(ctx, ManifestFileName)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, f := range files {
		if id, ok := ParseFileName(f); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Save writes m as the next version and points CURRENT at it. On success
// m.ID and m.CreatedAt reflect the stored version.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *m
	next.Version = CurrentVersion
	next.ID = m.ID + 1
	next.CreatedAt = time.Now()

	var buf bytes.Buffer
	if err := next.WriteBinary(&buf); err != nil {
		return err
	}

	filename := FileName(next.ID)
	if err := s.store.Put(ctx, filename, buf.Bytes()); err != nil {
		return err
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(filename)); err != nil {
		return err
	}

	m.Version = next.Version
	m.ID = next.ID
	m.CreatedAt = next.CreatedAt
	return nil
}

// DeleteVersion deletes the manifest file for the given version.
func (s *Store) DeleteVersion(ctx context.Context, versionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, FileName(versionID))
}

// Prune deletes all versions older than keep.
func (s *Store) Prune(ctx context.Context, keep uint64) error {
	ids, err := s.ListVersions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id >= keep {
			break
		}
		if err := s.DeleteVersion(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
