package archive

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/types"
)

// ManifestName is the session manifest kept alongside the captures.
const ManifestName = "session.toml"

// Manifest records what a capture session was about: which device and
// app were exercised and which snapshot each capture file became. The
// file is a sidecar; captures remain usable without it.
type Manifest struct {
	Device   string    `toml:"device"`
	Package  string    `toml:"package,omitempty"`
	Started  time.Time `toml:"started"`
	Notes    string    `toml:"notes,omitempty"`
	Captures []Capture `toml:"captures,omitempty"`
}

// Capture is one manifest row linking a capture file to the snapshot it
// was ingested as.
type Capture struct {
	File       string    `toml:"file"`
	SnapshotID string    `toml:"snapshot_id"`
	CapturedAt time.Time `toml:"captured_at"`
}

// AddCapture appends a manifest row for an ingested capture. Only the
// base name is recorded so the directory can be moved wholesale.
func (m *Manifest) AddCapture(entry Entry, id types.SnapshotID) {
	m.Captures = append(m.Captures, Capture{
		File:       filepath.Base(entry.Path),
		SnapshotID: string(id),
		CapturedAt: entry.CapturedAt,
	})
}

// LoadManifest reads dir's session manifest. A directory without one is
// normal and returns (nil, nil).
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewArchiveError(path, "read manifest", err)
	}

	var m Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, apperrors.NewArchiveError(path, "parse manifest", err)
	}
	return &m, nil
}

// WriteManifest writes m as dir's session manifest, replacing any
// existing one.
func WriteManifest(dir string, m *Manifest) error {
	raw, err := toml.Marshal(m)
	if err != nil {
		return apperrors.NewArchiveError(dir, "encode manifest", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return apperrors.NewArchiveError(path, "write manifest", err)
	}
	return nil
}
