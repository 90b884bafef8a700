package tokencache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

const fileExt = ".json"

// obfuscationKey masks token values at rest. It only keeps secrets out of
// casual greps; file permissions are what protect the cache.
var obfuscationKey = []byte("ispauth-token-cache")

// Cache persists tokens per (profile, method) as JSON files.
//
// Token values are never logged. Files are 0600 inside a 0700 directory.
type Cache struct {
	mu  sync.RWMutex
	dir string
	now func() time.Time
}

// entry is the on-disk form of a token.
type entry struct {
	Profile      string            `json:"profile"`
	Method       auth.AuthMethod   `json:"method"`
	Username     string            `json:"username"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Type         auth.TokenType    `json:"type"`
	Token        string            `json:"token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CachedAt     time.Time         `json:"cached_at"`
}

// New returns a cache rooted at dir. The directory is created lazily on the
// first Save.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("token cache directory must not be empty")
	}
	return &Cache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the file name stem used for (profile, method).
func Key(profile string, method auth.AuthMethod) string {
	hash := sha256.Sum256([]byte(profile + "/" + string(method)))
	return hex.EncodeToString(hash[:16])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

// errNoExpiry marks an entry without expires_at. Such entries are never
// served.
var errNoExpiry = errors.New("entry has no expiry")

// Load returns the cached token for (profile, method) or nil. Missing
// entries are misses. Unreadable and expired entries are misses and are
// removed.
func (c *Cache) Load(profile string, method auth.AuthMethod) *auth.Token {
	key := Key(profile, method)

	c.mu.RLock()
	e, err := c.read(key)
	c.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		logging.Warn("TokenCache", "Dropping unreadable cache entry for profile %s (%s): %v", profile, method, err)
		if err := c.Clear(profile, method); err != nil {
			logging.Warn("TokenCache", "Failed to remove unreadable entry: %v", err)
		}
		return nil
	}

	tok := e.token()
	if tok.IsExpired() {
		logging.Debug("TokenCache", "Cached token for profile %s (%s) expired at %s", profile, method, tok.ExpiresAt.Format(time.RFC3339))
		if err := c.Clear(profile, method); err != nil {
			logging.Warn("TokenCache", "Failed to remove expired entry: %v", err)
		}
		return nil
	}
	return tok
}

// LoadRefreshable returns the cached token if it carries a refresh token,
// whether or not it has expired. It never modifies the cache.
func (c *Cache) LoadRefreshable(profile string, method auth.AuthMethod) *auth.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, err := c.read(Key(profile, method))
	if err != nil {
		return nil
	}
	tok := e.token()
	if !tok.HasRefreshToken() {
		return nil
	}
	return tok
}

// Save stores tok for (profile, method), replacing any previous entry.
func (c *Cache) Save(profile string, method auth.AuthMethod, tok *auth.Token) error {
	if tok == nil {
		return errors.New("cannot cache a nil token")
	}
	if tok.ExpiresAt.IsZero() {
		return fmt.Errorf("cannot cache token for profile %s: %w", profile, errNoExpiry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}

	e := newEntry(profile, method, tok, c.now())
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	key := Key(profile, method)
	if err := writeAtomic(c.path(key), data); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_store",
			Outcome: "failure",
			Profile: profile,
			Method:  string(method),
			Detail:  err.Error(),
		})
		return fmt.Errorf("failed to persist token: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_store",
		Outcome: "success",
		Profile: profile,
		Method:  string(method),
		Detail:  fmt.Sprintf("expires=%s refreshable=%t", formatTime(tok.ExpiresAt), tok.HasRefreshToken()),
	})
	return nil
}

// Clear removes the entry for (profile, method). Clearing a missing entry
// is not an error.
func (c *Cache) Clear(profile string, method auth.AuthMethod) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(Key(profile, method)))
	if err != nil && !os.IsNotExist(err) {
		logging.Audit(logging.AuditEvent{
			Action:  "token_delete",
			Outcome: "failure",
			Profile: profile,
			Method:  string(method),
			Detail:  err.Error(),
		})
		return fmt.Errorf("failed to remove cached token: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_delete",
		Outcome: "success",
		Profile: profile,
		Method:  string(method),
	})
	return nil
}

// ClearAll removes every cached token and returns how many were removed.
func (c *Cache) ClearAll() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read token cache directory: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != fileExt {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove token file %s: %w", de.Name(), err)
		}
		removed++
	}

	logging.Audit(logging.AuditEvent{
		Action:  "tokens_cleared",
		Outcome: "success",
		Detail:  fmt.Sprintf("count=%d", removed),
	})
	return removed, nil
}

// List describes every readable cache entry, sorted by profile and method.
// Expired entries are included and flagged.
func (c *Cache) List() ([]auth.TokenStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token cache directory: %w", err)
	}

	var out []auth.TokenStatus
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != fileExt {
			continue
		}
		e, err := c.read(strings.TrimSuffix(de.Name(), fileExt))
		if err != nil {
			logging.Debug("TokenCache", "Skipping %s: %v", de.Name(), err)
			continue
		}
		tok := e.token()
		out = append(out, auth.TokenStatus{
			Profile:         e.Profile,
			Method:          e.Method,
			Username:        e.Username,
			Endpoint:        e.Endpoint,
			ExpiresAt:       e.ExpiresAt,
			Expired:         tok.IsExpiredWithMargin(0),
			HasRefreshToken: tok.HasRefreshToken(),
			Env:             tok.Meta(auth.MetadataEnv),
			CachedAt:        e.CachedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Profile != out[j].Profile {
			return out[i].Profile < out[j].Profile
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

// read decodes the entry stored under key. Callers hold c.mu.
func (c *Cache) read(key string) (*entry, error) {
	// #nosec G304 -- the file name is a hash, not user input
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if e.Token, err = reveal(e.Token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if e.RefreshToken, err = reveal(e.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decode refresh token: %w", err)
	}
	if enc, ok := e.Metadata[auth.MetadataCookies]; ok {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cookies: %w", err)
		}
		e.Metadata[auth.MetadataCookies] = string(raw)
	}
	if e.Token == "" {
		return nil, errors.New("entry has no token")
	}
	if e.ExpiresAt.IsZero() {
		return nil, errNoExpiry
	}
	return &e, nil
}

func newEntry(profile string, method auth.AuthMethod, tok *auth.Token, now time.Time) *entry {
	e := &entry{
		Profile:      profile,
		Method:       method,
		Username:     tok.Username,
		Endpoint:     tok.Endpoint,
		Type:         tok.Type,
		Token:        obfuscate(tok.Token.Reveal()),
		RefreshToken: obfuscate(tok.RefreshToken.Reveal()),
		ExpiresAt:    tok.ExpiresAt,
		CachedAt:     now,
	}
	if len(tok.Metadata) > 0 {
		e.Metadata = make(map[string]string, len(tok.Metadata))
		for k, v := range tok.Metadata {
			if k == auth.MetadataCookies {
				v = base64.StdEncoding.EncodeToString([]byte(v))
			}
			e.Metadata[k] = v
		}
	}
	return e
}

func (e *entry) token() *auth.Token {
	return &auth.Token{
		Token:        auth.NewSecret(e.Token),
		Username:     e.Username,
		Endpoint:     e.Endpoint,
		Type:         e.Type,
		Method:       e.Method,
		ExpiresAt:    e.ExpiresAt,
		RefreshToken: auth.NewSecret(e.RefreshToken),
		Metadata:     e.Metadata,
	}
}

func obfuscate(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(xor([]byte(s)))
}

func reveal(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(xor(raw)), nil
}

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}

// writeAtomic writes data next to path and renames it into place so readers
// never see a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
