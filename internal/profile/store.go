package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileName = "profiles.yaml"

// Store gives locked access to profiles.yaml.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore returns a store keeping profiles.yaml in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the location of profiles.yaml.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Load reads profiles.yaml. A missing file yields an empty File.
func (s *Store) Load() (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*File, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}
	return &f, nil
}

// Save writes f to profiles.yaml.
func (s *Store) Save(f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(f)
}

func (s *Store) saveLocked(f *File) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

// update runs fn on the loaded file and saves it if fn succeeds.
func (s *Store) update(fn func(f *File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return s.saveLocked(f)
}

// Get returns the named profile.
func (s *Store) Get(name string) (*Profile, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	p := f.Get(name)
	if p == nil {
		return nil, &NotFoundError{Name: name}
	}
	return p, nil
}

// Add creates a profile. The first profile added becomes current.
func (s *Store) Add(p Profile) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.update(func(f *File) error {
		if f.Has(p.Name) {
			return fmt.Errorf("profile %q already exists", p.Name)
		}
		f.put(p)
		if f.CurrentProfile == "" {
			f.CurrentProfile = p.Name
		}
		return nil
	})
}

// Update replaces an existing profile.
func (s *Store) Update(p Profile) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.update(func(f *File) error {
		if !f.Has(p.Name) {
			return &NotFoundError{Name: p.Name}
		}
		f.put(p)
		return nil
	})
}

// Delete removes a profile.
func (s *Store) Delete(name string) error {
	return s.update(func(f *File) error {
		if !f.remove(name) {
			return &NotFoundError{Name: name}
		}
		return nil
	})
}

// Rename changes a profile's name and keeps it current if it was.
func (s *Store) Rename(oldName, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	return s.update(func(f *File) error {
		old := f.Get(oldName)
		if old == nil {
			return &NotFoundError{Name: oldName}
		}
		if oldName != newName && f.Has(newName) {
			return fmt.Errorf("profile %q already exists", newName)
		}
		renamed := *old
		renamed.Name = newName
		wasCurrent := f.CurrentProfile == oldName

		f.remove(oldName)
		f.put(renamed)
		if wasCurrent {
			f.CurrentProfile = newName
		}
		return nil
	})
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := append([]Profile(nil), f.Profiles...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Names returns the profile names, for shell completion.
func (s *Store) Names() ([]string, error) {
	profiles, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names, nil
}

// SetCurrent selects the current profile.
func (s *Store) SetCurrent(name string) error {
	return s.update(func(f *File) error {
		if !f.Has(name) {
			return &NotFoundError{Name: name}
		}
		f.CurrentProfile = name
		return nil
	})
}

// Current returns the stored current profile name, which may be empty.
func (s *Store) Current() (string, error) {
	f, err := s.Load()
	if err != nil {
		return "", err
	}
	return f.CurrentProfile, nil
}

// Resolve picks the profile to use: flagName, then $ISPAUTH_PROFILE, then
// the current profile.
func (s *Store) Resolve(flagName string) (*Profile, error) {
	name := flagName
	if name == "" {
		name = os.Getenv(EnvVar)
	}
	if name == "" {
		current, err := s.Current()
		if err != nil {
			return nil, err
		}
		name = current
	}
	if name == "" {
		return nil, fmt.Errorf("no profile selected: pass --profile, set %s or run 'ispauth profile use'", EnvVar)
	}
	return s.Get(name)
}

func validate(p Profile) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := p.Auth.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return nil
}
