// SPDX-License-Identifier: MIT

// Package cache persists rendered transpositions on disk so later runs
// skip the vocoder. Each source sample owns one directory of
// "<offset>.wav" files, 32-bit float at the source's rate and channel
// count.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"keytone/internal/log"
	"keytone/internal/wave"
)

// RenderFunc produces the waveform for a semitone offset on a cache miss.
type RenderFunc func(semitones int) (*wave.Waveform, error)

// Store locates and validates the cache directory for one source sample.
type Store struct {
	dir      string
	rate     int
	channels int
}

// New derives the store for a source sample: a directory named after the
// sample's basename (without extension), placed next to the sample unless
// baseDir overrides the location. rate and channels come from the decoded
// source and gate every loaded entry.
func New(samplePath, baseDir string, rate, channels int) *Store {
	stem := strings.TrimSuffix(filepath.Base(samplePath), filepath.Ext(samplePath))
	if baseDir == "" {
		baseDir = filepath.Dir(samplePath)
	}
	return &Store{
		dir:      filepath.Join(baseDir, stem),
		rate:     rate,
		channels: channels,
	}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// Path returns the entry path for a semitone offset.
func (s *Store) Path(semitones int) string {
	return filepath.Join(s.dir, strconv.Itoa(semitones)+".wav")
}

// Clear removes the cache directory and all entries.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear cache %s: %w", s.dir, err)
	}
	return nil
}

// Ensure returns a waveform per requested offset, loading cached entries
// and rendering the rest. New entries are written to a temp file and
// renamed into place, so an interrupted run never leaves a partial file
// that a later run would treat as valid.
func (s *Store) Ensure(offsets []int, render RenderFunc) (map[int]*wave.Waveform, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	out := make(map[int]*wave.Waveform, len(offsets))
	hits, rendered := 0, 0
	for _, n := range offsets {
		if _, done := out[n]; done {
			continue
		}
		path := s.Path(n)

		if _, err := os.Stat(path); err == nil {
			w, err := s.load(path)
			if err != nil {
				return nil, err
			}
			out[n] = w
			hits++
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat cache entry: %w", err)
		}

		log.Debugf("cache: rendering %+d semitones", n)
		w, err := render(n)
		if err != nil {
			return nil, fmt.Errorf("render %+d semitones: %w", n, err)
		}
		if err := s.write(path, w); err != nil {
			return nil, err
		}
		out[n] = w
		rendered++
	}

	log.Infof("cache: %d hits, %d rendered in %s", hits, rendered, s.dir)
	return out, nil
}

func (s *Store) load(path string) (*wave.Waveform, error) {
	w, err := wave.Decode(path)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w (clear the cache to rebuild)", path, err)
	}
	if w.Rate() != s.rate || w.Channels() != s.channels {
		return nil, fmt.Errorf("cache entry %s is %d Hz/%d ch but the source is %d Hz/%d ch (clear the cache to rebuild)",
			path, w.Rate(), w.Channels(), s.rate, s.channels)
	}
	return w, nil
}

func (s *Store) write(path string, w *wave.Waveform) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := wave.Encode(tmp, w); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache entry %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cache entry %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache entry %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish cache entry %s: %w", path, err)
	}
	return nil
}
