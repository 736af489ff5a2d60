package pointnet

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// CheckpointFormat is bumped whenever the encoded layout changes.
const CheckpointFormat = 1

// Checkpoint is the on-disk form of a trained network.
type Checkpoint struct {
	Format      int
	Arch        string
	NumClasses  int
	AdditionDim int
	State       StateDict
}

// NewCheckpoint snapshots the network's current parameters.
func (m *PointSemantic) NewCheckpoint(arch string) *Checkpoint {
	return &Checkpoint{
		Format:      CheckpointFormat,
		Arch:        arch,
		NumClasses:  m.cfg.NumClasses,
		AdditionDim: m.cfg.AdditionDim,
		State:       m.StateDict(),
	}
}

// LoadCheckpoint validates ck against the network and loads its state.
func (m *PointSemantic) LoadCheckpoint(ck *Checkpoint) error {
	if ck.NumClasses != m.cfg.NumClasses {
		return fmt.Errorf("%w: checkpoint has %d classes, network %d", ErrCheckpointMismatch, ck.NumClasses, m.cfg.NumClasses)
	}
	if ck.AdditionDim != m.cfg.AdditionDim {
		return fmt.Errorf("%w: checkpoint addition dim %d, network %d", ErrCheckpointMismatch, ck.AdditionDim, m.cfg.AdditionDim)
	}
	return m.LoadStateDict(ck.State)
}

// CheckArch fails unless the checkpoint was saved for arch.
func (ck *Checkpoint) CheckArch(arch string) error {
	if ck.Arch != arch {
		return fmt.Errorf("%w: checkpoint arch %q, want %q", ErrCheckpointMismatch, ck.Arch, arch)
	}
	return nil
}

// WriteCheckpoint encodes ck as gzip-compressed gob.
func WriteCheckpoint(w io.Writer, ck *Checkpoint) error {
	gz := gzip.NewWriter(w)
	if err := gob.NewEncoder(gz).Encode(ck); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint decodes a checkpoint written by WriteCheckpoint.
func ReadCheckpoint(r io.Reader) (*Checkpoint, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer gz.Close()
	var ck Checkpoint
	if err := gob.NewDecoder(gz).Decode(&ck); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if ck.Format != CheckpointFormat {
		return nil, fmt.Errorf("%w: format %d, want %d", ErrCheckpointMismatch, ck.Format, CheckpointFormat)
	}
	return &ck, nil
}

// SaveCheckpointFile writes ck to path.
func SaveCheckpointFile(path string, ck *Checkpoint) error {
	var buf bytes.Buffer
	if err := WriteCheckpoint(&buf, ck); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpointFile reads a checkpoint from path.
func LoadCheckpointFile(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer f.Close()
	return ReadCheckpoint(f)
}
