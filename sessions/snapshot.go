package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnapshotVersion is written with every persisted snapshot.
// Version 0 (no version field) is the legacy format with loosely cased keys.
const SnapshotVersion = 1

var (
	ErrCorruptSnapshot = errors.New("corrupt session snapshot")
	ErrPartialSession  = errors.New("session snapshot has user without tokens or tokens without user")
)

// Snapshot is the persisted form of a session record.
type Snapshot struct {
	Version int     `json:"version"`
	User    *User   `json:"user"`
	Tokens  *Tokens `json:"tokens"`
	SavedAt int64   `json:"savedAt"` // epoch millis
}

// Empty reports whether the snapshot holds no session.
func (s Snapshot) Empty() bool {
	return s.User == nil && s.Tokens == nil
}

// EncodeSnapshot serialises a session record in the current snapshot version.
func EncodeSnapshot(user *User, tokens *Tokens, savedAt time.Time) ([]byte, error) {
	return json.Marshal(Snapshot{
		Version: SnapshotVersion,
		User:    user,
		Tokens:  tokens,
		SavedAt: savedAt.UnixMilli(),
	})
}

// DecodeSnapshot parses a stored snapshot. Any error means the slot should be discarded.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var (
		snap Snapshot
		err  error
	)
	switch probe.Version {
	case 0:
		snap, err = decodeLegacySnapshot(raw)
	case SnapshotVersion:
		err = json.Unmarshal(raw, &snap)
	default:
		err = fmt.Errorf("unsupported version %d", probe.Version)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	if snap.Tokens != nil && snap.Tokens.AccessToken == "" && snap.Tokens.RefreshToken == "" {
		snap.Tokens = nil
	}
	if (snap.User == nil) != (snap.Tokens == nil) {
		return Snapshot{}, ErrPartialSession
	}
	if snap.User != nil {
		snap.User.Role = Role(strings.ToLower(string(snap.User.Role)))
		if !snap.User.Role.Valid() {
			return Snapshot{}, fmt.Errorf("%w: unknown role %q", ErrCorruptSnapshot, snap.User.Role)
		}
	}
	snap.Version = SnapshotVersion
	return snap, nil
}

var (
	legacyUserKeys         = []string{"user", "User"}
	legacyTokensKeys       = []string{"tokens", "Tokens"}
	legacySavedAtKeys      = []string{"savedAt", "SavedAt"}
	legacyIDKeys           = []string{"id", "ID", "Id", "uid"}
	legacyEmailKeys        = []string{"email", "Email"}
	legacyRoleKeys         = []string{"role", "Role"}
	legacyCreatedAtKeys    = []string{"createdAt", "CreatedAt"}
	legacyAccessTokenKeys  = []string{"accessToken", "AccessToken", "access_token"}
	legacyRefreshTokenKeys = []string{"refreshToken", "RefreshToken", "refresh_token"}
)

// decodeLegacySnapshot reads version 0 snapshots written before the key casing was fixed.
// Only the key variants listed above are accepted.
func decodeLegacySnapshot(raw []byte) (Snapshot, error) {
	top, err := rawObject(raw)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if userRaw := lookup(top, legacyUserKeys); userRaw != nil {
		fields, err := rawObject(userRaw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("user: %w", err)
		}
		user := &User{
			ID:    scalarString(lookup(fields, legacyIDKeys)),
			Email: scalarString(lookup(fields, legacyEmailKeys)),
			Role:  Role(scalarString(lookup(fields, legacyRoleKeys))),
		}
		if createdAt := lookup(fields, legacyCreatedAtKeys); createdAt != nil {
			_ = json.Unmarshal(createdAt, &user.CreatedAt) // unparsable legacy timestamps stay zero
		}
		snap.User = user
	}

	if tokensRaw := lookup(top, legacyTokensKeys); tokensRaw != nil {
		fields, err := rawObject(tokensRaw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("tokens: %w", err)
		}
		snap.Tokens = &Tokens{
			AccessToken:  scalarString(lookup(fields, legacyAccessTokenKeys)),
			RefreshToken: scalarString(lookup(fields, legacyRefreshTokenKeys)),
		}
	}

	if savedAt := lookup(top, legacySavedAtKeys); savedAt != nil {
		_ = json.Unmarshal(savedAt, &snap.SavedAt)
	}
	return snap, nil
}

func rawObject(raw []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("expected an object")
	}
	return obj, nil
}

// lookup returns the first non-null value found under any of the keys.
func lookup(obj map[string]json.RawMessage, keys []string) json.RawMessage {
	for _, k := range keys {
		if v, ok := obj[k]; ok && len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// scalarString accepts JSON strings and numbers (legacy numeric ids).
func scalarString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
