// Package config manages named configuration profiles under the config
// directory:
//
//	<dir>/active_config             name of the active profile
//	<dir>/configurations/<profile>  TOML sections, e.g. [core] hostname = "..."
//	<dir>/tokens/<profile>.json     token caches, see package auth
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/tarrence/cray-cli/internal/fsutil"
)

const (
	EnvDir     = "CRAY_CONFIG_DIR"
	EnvProfile = "CRAY_CONFIG"

	DefaultProfile = "default"

	KeyHostname = "core.hostname"
	KeyFormat   = "format.default"
	KeyQuiet    = "core.quiet"
)

// Formats are the accepted output formats.
var Formats = []string{"json", "toml", "yaml"}

var profileNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultDir resolves the configuration directory from the environment.
func DefaultDir() string {
	if d := os.Getenv(EnvDir); d != "" {
		return d
	}
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, "cray")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "cray")
	}
	return filepath.Join(".", ".cray")
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string      { return s.dir }
func (s *Store) TokenDir() string { return filepath.Join(s.dir, "tokens") }

func (s *Store) profileDir() string { return filepath.Join(s.dir, "configurations") }
func (s *Store) activePath() string { return filepath.Join(s.dir, "active_config") }

func (s *Store) ProfilePath(name string) string {
	return filepath.Join(s.profileDir(), name)
}

// ActiveProfile returns the profile selected by CRAY_CONFIG, then the
// active_config file, then "default".
func (s *Store) ActiveProfile() (string, error) {
	if name := os.Getenv(EnvProfile); name != "" {
		return name, nil
	}
	b, err := fsutil.ReadFileOptional(s.activePath())
	if err != nil {
		return "", errors.Wrap(err, "read active configuration")
	}
	if name := strings.TrimSpace(string(b)); name != "" {
		return name, nil
	}
	return DefaultProfile, nil
}

// SetActive records name as the active profile. The profile must exist.
func (s *Store) SetActive(name string) error {
	if err := validateProfileName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.ProfilePath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Errorf("configuration %q does not exist", name)
		}
		return err
	}
	return fsutil.WriteFileAtomic(s.activePath(), []byte(name+"\n"), 0o600)
}

// List returns the names of all stored profiles.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.profileDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the named profile. A missing profile loads as empty.
func (s *Store) Load(name string) (*Profile, error) {
	if err := validateProfileName(name); err != nil {
		return nil, err
	}
	p := &Profile{Name: name, Sections: map[string]map[string]any{}}

	v := viper.New()
	v.SetConfigFile(s.ProfilePath(name))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, errors.Wrapf(err, "configuration %q", name)
	}
	for section, raw := range v.AllSettings() {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Errorf("configuration %q: top-level key %q is not a section", name, section)
		}
		p.Sections[section] = m
	}
	return p, nil
}

// Save writes the profile atomically after validating it.
func (s *Store) Save(p *Profile) error {
	if err := validateProfileName(p.Name); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := toml.Marshal(p.Sections)
	if err != nil {
		return errors.Wrap(err, "encode configuration")
	}
	return fsutil.WriteFileAtomic(s.ProfilePath(p.Name), b, 0o600)
}

// Delete removes the named profile.
func (s *Store) Delete(name string) error {
	if err := validateProfileName(name); err != nil {
		return err
	}
	err := os.Remove(s.ProfilePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("configuration %q does not exist", name)
	}
	return err
}

func validateProfileName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Match(profileNameRE).Error("must contain only letters, digits, '-' and '_'"),
	)
}

// Profile is one configuration: TOML sections of scalar values.
type Profile struct {
	Name     string
	Sections map[string]map[string]any
}

// Get returns the value at a "section.name" key.
func (p *Profile) Get(key string) (any, bool) {
	section, name, err := splitKey(key)
	if err != nil {
		return nil, false
	}
	v, ok := p.Sections[section][name]
	return v, ok
}

// Set stores a value at a "section.name" key. Known keys are validated.
func (p *Profile) Set(key, value string) error {
	key = strings.ToLower(key)
	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	var v any = value
	if key == KeyQuiet {
		b, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Errorf("%s: %q is not a boolean", key, value)
		}
		v = b
	}
	if err := validateKey(key, v); err != nil {
		return err
	}
	if p.Sections == nil {
		p.Sections = map[string]map[string]any{}
	}
	if p.Sections[section] == nil {
		p.Sections[section] = map[string]any{}
	}
	p.Sections[section][name] = v
	return nil
}

// Unset removes a key, dropping its section when it becomes empty.
func (p *Profile) Unset(key string) bool {
	section, name, err := splitKey(key)
	if err != nil {
		return false
	}
	if _, ok := p.Sections[section][name]; !ok {
		return false
	}
	delete(p.Sections[section], name)
	if len(p.Sections[section]) == 0 {
		delete(p.Sections, section)
	}
	return true
}

func (p *Profile) Hostname() string {
	v, _ := p.Get(KeyHostname)
	return cast.ToString(v)
}

func (p *Profile) Format() string {
	v, _ := p.Get(KeyFormat)
	return cast.ToString(v)
}

func (p *Profile) Quiet() bool {
	v, _ := p.Get(KeyQuiet)
	return cast.ToBool(v)
}

// Keys returns every "section.name" key in sorted order.
func (p *Profile) Keys() []string {
	var keys []string
	for section, m := range p.Sections {
		for name := range m {
			keys = append(keys, section+"."+name)
		}
	}
	sort.Strings(keys)
	return keys
}

func (p *Profile) Validate() error {
	for _, key := range p.Keys() {
		v, _ := p.Get(key)
		if err := validateKey(key, v); err != nil {
			return errors.Wrapf(err, "configuration %q", p.Name)
		}
	}
	return nil
}

func validateKey(key string, v any) error {
	var err error
	switch key {
	case KeyHostname:
		err = validation.Validate(cast.ToString(v), validation.Required, is.URL)
	case KeyFormat:
		err = validation.Validate(cast.ToString(v), validation.Required, validation.In(lo.ToAnySlice(Formats)...))
	}
	if err != nil {
		return errors.Errorf("%s: %v", key, err)
	}
	return nil
}

// ValidateFormat reports whether f is an accepted output format.
func ValidateFormat(f string) error {
	return validateKey(KeyFormat, f)
}

func splitKey(key string) (string, string, error) {
	section, name, ok := strings.Cut(strings.ToLower(key), ".")
	if !ok || section == "" || name == "" || strings.Contains(name, ".") {
		return "", "", errors.Errorf("invalid key %q: expected <section>.<name>", key)
	}
	return section, name, nil
}
