package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio"
)

// Store reads and writes the identity document and the reference images.
// It is meant for a single writer; there is no locking between processes.
type Store struct {
	path     string
	imageDir string
	dim      int // expected descriptor length, 0 accepts any non-empty descriptor
}

// NewStore creates a store backed by the document at path. Reference images
// are kept in imageDir. dim, when positive, is the descriptor length enforced
// on Add and Load.
func NewStore(path, imageDir string, dim int) *Store {
	return &Store{path: path, imageDir: imageDir, dim: dim}
}

// Path returns the location of the identity document.
func (s *Store) Path() string {
	return s.path
}

// ImagePath returns where the reference image for name is stored.
func (s *Store) ImagePath(name string) string {
	return filepath.Join(s.imageDir, ImageFileName(name))
}

// Load reads the whole document. A missing document is an empty store. A
// document that cannot be parsed, or that holds an unusable record, fails with
// ErrStoreCorrupt instead of being treated as empty.
func (s *Store) Load() (map[string]Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Identity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity store %s: %w", s.path, err)
	}

	identities := map[string]Identity{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrStoreCorrupt, s.path)
	}
	if err := json.Unmarshal(data, &identities); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, s.path, err)
	}
	if identities == nil {
		// the document was a JSON null
		return nil, fmt.Errorf("%w: %s holds no mapping", ErrStoreCorrupt, s.path)
	}

	for id, ident := range identities {
		if strings.TrimSpace(ident.Name) == "" {
			return nil, fmt.Errorf("%w: record %s has no name", ErrStoreCorrupt, id)
		}
		if err := s.checkDescriptor(ident.Descriptor); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrStoreCorrupt, id, err)
		}
		ident.ID = id
		identities[id] = ident
	}
	return identities, nil
}

// Save replaces the document with the given mapping. The file is written to a
// temporary file in the same directory and renamed over the old one, so a crash
// leaves either the old or the new document.
func (s *Store) Save(identities map[string]Identity) error {
	if identities == nil {
		identities = map[string]Identity{}
	}
	data, err := json.MarshalIndent(identities, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identity store: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write identity store %s: %w", s.path, err)
	}
	return nil
}

// Find returns the identity enrolled under name, compared case-insensitively.
func (s *Store) Find(name string) (Identity, bool, error) {
	identities, err := s.Load()
	if err != nil {
		return Identity{}, false, err
	}
	for _, ident := range identities {
		if SameName(ident.Name, name) {
			return ident, true, nil
		}
	}
	return Identity{}, false, nil
}

// Add enrolls a new person. The reference image is written before the document
// is saved and removed again if the save fails, so a failed Add leaves the
// store as it was.
func (s *Store) Add(name string, descriptor Descriptor, image []byte) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrEmptyName
	}
	if err := s.checkDescriptor(descriptor); err != nil {
		return Identity{}, err
	}

	identities, err := s.Load()
	if err != nil {
		return Identity{}, err
	}
	for _, existing := range identities {
		switch {
		case SameName(existing.Name, name):
			return Identity{}, fmt.Errorf("%w: %q", ErrDuplicateIdentity, existing.Name)
		case SameImage(existing.Name, name):
			return Identity{}, fmt.Errorf("%w: %q would share the reference image of %q",
				ErrDuplicateIdentity, name, existing.Name)
		}
	}

	ident := Identity{
		ID:         NextID(identities),
		Name:       name,
		Descriptor: slices.Clone(descriptor),
	}

	imagePath := ""
	if len(image) > 0 {
		imagePath = s.ImagePath(name)
		if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
			return Identity{}, fmt.Errorf("failed to create image directory: %w", err)
		}
		if err := renameio.WriteFile(imagePath, image, 0o644); err != nil {
			return Identity{}, fmt.Errorf("failed to write reference image: %w", err)
		}
	}

	identities[ident.ID] = ident
	if err := s.Save(identities); err != nil {
		if imagePath != "" {
			_ = os.Remove(imagePath)
		}
		return Identity{}, err
	}
	return ident, nil
}

// Remove deletes every record whose name matches case-insensitively, along
// with their reference images. It reports whether anything was removed; an
// unknown name is not an error. Once the document is saved the removal has
// happened, so an image that cannot be deleted is only logged.
func (s *Store) Remove(name string) (bool, error) {
	identities, err := s.Load()
	if err != nil {
		return false, err
	}

	var removed []Identity
	for id, ident := range identities {
		if SameName(ident.Name, name) {
			removed = append(removed, ident)
			delete(identities, id)
		}
	}
	if len(removed) == 0 {
		return false, nil
	}

	if err := s.Save(identities); err != nil {
		return false, err
	}

	for _, ident := range removed {
		if imageInUse(identities, ident.Name) {
			// older documents may hold records that share one file
			continue
		}
		path := s.ImagePath(ident.Name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("identity removed but its reference image was not deleted",
				"name", ident.Name,
				"path", path,
				"error", err,
			)
		}
	}
	return true, nil
}

func imageInUse(identities map[string]Identity, name string) bool {
	for _, ident := range identities {
		if SameImage(ident.Name, name) {
			return true
		}
	}
	return false
}

// List returns every enrolled identity ordered by id.
func (s *Store) List() ([]Identity, error) {
	identities, err := s.Load()
	if err != nil {
		return nil, err
	}
	return Sorted(identities), nil
}

// Sorted flattens a mapping into a slice ordered by id.
func Sorted(identities map[string]Identity) []Identity {
	list := make([]Identity, 0, len(identities))
	for _, ident := range identities {
		list = append(list, ident)
	}
	slices.SortFunc(list, func(a, b Identity) int {
		switch {
		case lessID(a.ID, b.ID):
			return -1
		case lessID(b.ID, a.ID):
			return 1
		default:
			return 0
		}
	})
	return list
}

func (s *Store) checkDescriptor(d Descriptor) error {
	if len(d) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}
	if s.dim > 0 && len(d) != s.dim {
		return fmt.Errorf("%w: length %d, expected %d", ErrInvalidDescriptor, len(d), s.dim)
	}
	if !d.Finite() {
		return fmt.Errorf("%w: non-finite value", ErrInvalidDescriptor)
	}
	return nil
}
