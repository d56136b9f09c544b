// Package receipt records that a target directory finished installing.
//
// A receipt is written as the last step of a successful install, so a
// directory without one was left behind by an interrupted run.
package receipt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/reqinstall/internal/dist"
)

// FileName is the receipt's name inside a target directory.
const FileName = ".reqinstall-receipt.yaml"

const formatVersion = 1

// Receipt describes one completed install.
type Receipt struct {
	Format      int       `yaml:"format"`
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Index       string    `yaml:"index,omitempty"`
	Command     []string  `yaml:"command,omitempty"`
	InstalledAt time.Time `yaml:"installed_at"`
}

// New creates a receipt for req stamped with the current time.
func New(req dist.Requirement, index string, command []string) Receipt {
	return Receipt{
		Format:      formatVersion,
		Name:        req.Name,
		Version:     req.Version,
		Index:       index,
		Command:     command,
		InstalledAt: time.Now().UTC().Truncate(time.Second),
	}
}

// Encode writes r as YAML.
func Encode(w io.Writer, r Receipt) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// Decode reads a receipt from YAML.
func Decode(rd io.Reader) (Receipt, error) {
	var r Receipt
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return Receipt{}, fmt.Errorf("parsing receipt: %w", err)
	}
	if r.Format != formatVersion {
		return Receipt{}, fmt.Errorf("unsupported receipt format %d", r.Format)
	}
	return r, nil
}

// Path returns the receipt path for a target directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write stores r in dir, replacing any previous receipt atomically.
func Write(dir string, r Receipt) error {
	dest := Path(dir)
	tmpPath := dest + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating receipt: %w", err)
	}

	err = Encode(out, r)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing receipt: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming receipt: %w", err)
	}
	return nil
}

// Read loads the receipt from dir.
func Read(dir string) (Receipt, error) {
	f, err := os.Open(Path(dir))
	if err != nil {
		return Receipt{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Complete reports whether dir holds a valid receipt for req.
func Complete(dir string, req dist.Requirement) bool {
	r, err := Read(dir)
	if err != nil {
		return false
	}
	return r.Name == req.Name && r.Version == req.Version
}

// IsMissing reports whether err means no receipt was found.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
