// Package store owns the persisted session record and its normalization
// rules. It knows nothing about how windows are enumerated or controlled;
// liveness information arrives as a pre-built ID set.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/asheshgoplani/tabdeck/internal/logging"
	"github.com/asheshgoplani/tabdeck/internal/wm"
)

var storeLog = logging.ForComponent(logging.CompStore)

// Record is the sole persisted entity: an ordered tab sequence, the active
// tab, and a derived status string for prompt integration.
//
// Invariants after normalization:
//   - Windows holds no duplicates.
//   - When a live set was supplied, every window is a member of it.
//   - Active is a member of Windows whenever Windows is non-empty,
//     defaulting to the first window.
//   - When Windows is empty, Active is nil and Status is "".
//   - Status is always recomputed as "[position/count]", never trusted
//     from disk.
type Record struct {
	Windows []wm.WindowID `json:"windows"`
	Active  *wm.WindowID  `json:"active"`
	Status  string        `json:"status"`
}

// Empty returns a blank session record.
func Empty() Record {
	return Record{Windows: []wm.WindowID{}}
}

// raw mirrors the on-disk shape before any sanitization. Window entries and
// the active pointer are decoded loosely so malformed entries can be
// dropped instead of failing the whole load.
type raw struct {
	Windows []any `json:"windows"`
	Active  any   `json:"active"`
}

// coerceID converts a loosely-typed JSON value to a window ID. Numeric
// strings are accepted; anything else is dropped by the caller.
func coerceID(v any) (wm.WindowID, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return wm.WindowID(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return wm.WindowID(n), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return wm.WindowID(n), true
	case int:
		return wm.WindowID(t), true
	case int64:
		return wm.WindowID(t), true
	case wm.WindowID:
		return t, true
	default:
		return 0, false
	}
}

// normalize applies the record invariants to an already-typed window list.
// A nil live set means "no liveness filter"; an empty non-nil set prunes
// every window.
func normalize(windows []wm.WindowID, active *wm.WindowID, live wm.IDSet) Record {
	rec := Empty()

	seen := make(map[wm.WindowID]struct{}, len(windows))
	for _, id := range windows {
		if live != nil && !live.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rec.Windows = append(rec.Windows, id)
	}
	if rec.Windows == nil {
		rec.Windows = []wm.WindowID{}
	}

	if len(rec.Windows) == 0 {
		return rec
	}

	chosen := rec.Windows[0]
	if active != nil {
		for _, id := range rec.Windows {
			if id == *active {
				chosen = id
				break
			}
		}
	}
	rec.Active = &chosen
	rec.Status = formatStatus(rec.Windows, chosen)
	return rec
}

// normalizeRaw sanitizes a loosely-typed record: window entries that fail
// coercion are dropped, stale windows are pruned against the live set,
// duplicates are removed keeping first occurrence, and the active pointer
// and status string are re-derived.
func normalizeRaw(r raw, live wm.IDSet) Record {
	var windows []wm.WindowID
	for _, v := range r.Windows {
		if id, ok := coerceID(v); ok {
			windows = append(windows, id)
		}
	}

	var active *wm.WindowID
	if id, ok := coerceID(r.Active); ok {
		active = &id
	}

	return normalize(windows, active, live)
}

// Sanitize re-applies the invariants to a typed record without a liveness
// filter. Save runs this so callers can never persist a stale status or a
// dangling active pointer.
func Sanitize(rec Record) Record {
	return normalize(rec.Windows, rec.Active, nil)
}

// formatStatus renders the "[current/total]" prompt string.
func formatStatus(windows []wm.WindowID, active wm.WindowID) string {
	pos := 1
	for i, id := range windows {
		if id == active {
			pos = i + 1
			break
		}
	}
	return fmt.Sprintf("[%d/%d]", pos, len(windows))
}

// Store persists the session record at a fixed path.
type Store struct {
	path string
	log  *slog.Logger
}

// New returns a store reading and writing the record at path.
func New(path string) *Store {
	return &Store{path: path, log: storeLog}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a persisted record is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the persisted record and normalizes it. A missing file or
// unparseable content degrades to the empty record; corruption is
// self-healing, never an error. Pass a nil live set to skip the liveness
// filter (used by operations that trust membership enforced at add time).
func (s *Store) Load(live wm.IDSet) Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return normalizeRaw(raw{}, live)
	}

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		s.log.Warn("corrupt_session_file", slog.String("path", s.path), slog.String("error", err.Error()))
		r = raw{}
	}
	return normalizeRaw(r, live)
}

// Save sanitizes and persists the record, returning the value actually
// written. Callers must use the returned record: active and status may have
// been corrected.
func (s *Store) Save(rec Record) (Record, error) {
	rec = Sanitize(rec)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rec, fmt.Errorf("marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return rec, fmt.Errorf("create session dir: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the record.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return rec, fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return rec, fmt.Errorf("replace session: %w", err)
	}
	return rec, nil
}

// Delete removes the persisted record. Deleting an absent record is a
// successful no-op.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
