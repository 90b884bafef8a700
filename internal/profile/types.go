package profile

import (
	"fmt"
	"regexp"

	"github.com/giantswarm/ispauth/pkg/auth"
)

// EnvVar overrides the current profile.
const EnvVar = "ISPAUTH_PROFILE"

const maxNameLength = 63

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Profile is a named way of authenticating.
type Profile struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Auth        auth.AuthProfile `yaml:"auth" json:"auth"`
}

// File is the root of profiles.yaml.
type File struct {
	CurrentProfile string    `yaml:"current-profile,omitempty"`
	Profiles       []Profile `yaml:"profiles,omitempty"`
}

// NotFoundError is returned when a named profile does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found", e.Name)
}

// ValidateName checks a profile name: 1 to 63 lowercase letters, digits
// and hyphens, starting and ending with a letter or digit.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("profile name cannot exceed %d characters", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("profile name must contain only lowercase letters, numbers, and hyphens, and must start and end with an alphanumeric character")
	}
	return nil
}

// Get returns the named profile or nil.
func (f *File) Get(name string) *Profile {
	for i := range f.Profiles {
		if f.Profiles[i].Name == name {
			return &f.Profiles[i]
		}
	}
	return nil
}

// Has reports whether a profile exists.
func (f *File) Has(name string) bool {
	return f.Get(name) != nil
}

func (f *File) put(p Profile) {
	for i := range f.Profiles {
		if f.Profiles[i].Name == p.Name {
			f.Profiles[i] = p
			return
		}
	}
	f.Profiles = append(f.Profiles, p)
}

// remove deletes the named profile and clears CurrentProfile if it pointed
// at it.
func (f *File) remove(name string) bool {
	for i := range f.Profiles {
		if f.Profiles[i].Name == name {
			f.Profiles = append(f.Profiles[:i], f.Profiles[i+1:]...)
			if f.CurrentProfile == name {
				f.CurrentProfile = ""
			}
			return true
		}
	}
	return false
}
