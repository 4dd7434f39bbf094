package incident

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/breathe-tracking/internal/config"
	domain "github.com/oshokin/breathe-tracking/internal/domain/incident"
	pb "github.com/oshokin/breathe-tracking/internal/pb/v1"
)

// ErrDuplicateID is returned by Insert when the id is already stored.
var ErrDuplicateID = errors.New("incident id already exists")

// FileRepository persists incidents to a JSON file on disk.
// The file holds a protobuf ListValue of incident messages encoded with protojson.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes every read-modify-write of the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Insert implements Repository.
func (r *FileRepository) Insert(_ context.Context, inc *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return err
	}

	for _, existing := range all {
		if existing.ID == inc.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, inc.ID)
		}
	}

	return r.save(append(all, inc.Clone()))
}

// Get implements Repository.
func (r *FileRepository) Get(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, inc := range all {
		if inc.ID == id {
			return inc, nil
		}
	}

	return nil, domain.ErrNotFound
}

// ListBySensor implements Repository.
func (r *FileRepository) ListBySensor(_ context.Context, sensorID string, limit int) ([]*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Incident, 0, len(all))

	for _, inc := range all {
		if inc.SensorID == sensorID {
			result = append(result, inc)
		}
	}

	SortNewestFirst(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Update implements Repository.
func (r *FileRepository) Update(_ context.Context, inc *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return err
	}

	for i, existing := range all {
		if existing.ID == inc.ID {
			all[i] = inc.Clone()

			return r.save(all)
		}
	}

	return domain.ErrNotFound
}

// Close implements Repository.
func (*FileRepository) Close() error {
	return nil
}

// SortNewestFirst orders incidents by creation time descending, then by id for a stable order.
func SortNewestFirst(list []*domain.Incident) {
	slices.SortStableFunc(list, func(a, b *domain.Incident) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})
}

// load reads every incident; a missing file is an empty store.
func (r *FileRepository) load() ([]*domain.Incident, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read incidents file: %w", err)
	}

	var list structpb.ListValue
	if err = protojson.Unmarshal(contents, &list); err != nil {
		return nil, fmt.Errorf("decode incidents file: %w", err)
	}

	all, err := pb.IncidentsFromList(&list)
	if err != nil {
		return nil, fmt.Errorf("decode incidents file: %w", err)
	}

	return all, nil
}

// save rewrites the file through a temporary file so readers never see a partial write.
func (r *FileRepository) save(all []*domain.Incident) error {
	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(pb.IncidentsToList(all))
	if err != nil {
		return fmt.Errorf("encode incidents: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write incidents file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace incidents file: %w", err)
	}

	return nil
}
