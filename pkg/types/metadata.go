package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TournamentIDKey is the only metadata key the service interprets.
const TournamentIDKey = "tournamentId"

// tournamentIDAltKey is the snake_case spelling older clients send.
const tournamentIDAltKey = "tournament_id"

// Metadata is an opaque key/value bag persisted verbatim as JSON.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	*m = out
	return nil
}

// TournamentID returns the reserved tournament reference, if present.
func (m Metadata) TournamentID() (string, bool) {
	if v, ok := m[TournamentIDKey]; ok && v != "" {
		return v, true
	}
	if v, ok := m[tournamentIDAltKey]; ok && v != "" {
		return v, true
	}
	return "", false
}

// Clone returns a copy safe to mutate.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with extra applied on top.
func (m Metadata) Merge(extra map[string]string) Metadata {
	out := m.Clone()
	for k, v := range extra {
		out[k] = v
	}
	return out
}
