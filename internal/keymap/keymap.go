// Package keymap parses keyboard layout files and derives the semitone
// offset each key plays relative to the anchor key.
//
// Layout files are plain text, one key label per line in playing order,
// low notes first. Blank lines and lines starting with '#' are skipped.
// Exactly one label must carry the " anchor" suffix; that key plays the
// source note untransposed and every other key plays its file-order
// distance from the anchor in semitones.
package keymap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// AnchorSuffix marks the untransposed key in a layout file.
const AnchorSuffix = " anchor"

// MaxOffset bounds a key's distance from the anchor in semitones.
// Transpositions beyond roughly two octaves degrade into artifacts, so
// wider layouts are rejected as configuration mistakes.
const MaxOffset = 25

var (
	// ErrEmptyLayout flags a layout file with no key lines.
	ErrEmptyLayout = errors.New("layout has no keys")
	// ErrNoAnchor flags a layout without an anchor marker.
	ErrNoAnchor = errors.New("layout has no anchor key")
	// ErrDuplicateAnchor flags a layout with more than one anchor marker.
	ErrDuplicateAnchor = errors.New("layout has more than one anchor key")
	// ErrOffsetRange flags a key farther than MaxOffset from the anchor.
	ErrOffsetRange = errors.New("key offset outside supported range")
)

// Layout is an ordered key list with a resolved anchor position.
type Layout struct {
	keys   []string
	anchor int
}

// Load reads and parses a layout file.
func Load(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// Parse reads a layout from r.
func Parse(r io.Reader) (*Layout, error) {
	var keys []string
	anchor := -1

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if strings.HasSuffix(text, AnchorSuffix) {
			if anchor != -1 {
				return nil, fmt.Errorf("%w: line %d", ErrDuplicateAnchor, line)
			}
			anchor = len(keys)
			text = strings.TrimSpace(strings.TrimSuffix(text, AnchorSuffix))
		}
		keys = append(keys, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}

	if len(keys) == 0 {
		return nil, ErrEmptyLayout
	}
	if anchor == -1 {
		return nil, ErrNoAnchor
	}
	for i, key := range keys {
		if off := i - anchor; off < -MaxOffset || off > MaxOffset {
			return nil, fmt.Errorf("%w: key %q is %+d semitones from the anchor (max ±%d)",
				ErrOffsetRange, key, off, MaxOffset)
		}
	}

	return &Layout{keys: keys, anchor: anchor}, nil
}

// Keys returns the labels in file order.
func (l *Layout) Keys() []string { return l.keys }

// Anchor returns the index of the anchor key.
func (l *Layout) Anchor() int { return l.anchor }

// Offset returns the semitone offset of the key at index i.
func (l *Layout) Offset(i int) int { return i - l.anchor }

// Offsets returns every key's semitone offset in file order.
func (l *Layout) Offsets() []int {
	out := make([]int, len(l.keys))
	for i := range l.keys {
		out[i] = i - l.anchor
	}
	return out
}

// Bindings maps key labels to semitone offsets. Duplicate labels are
// last-write-wins in file order.
func (l *Layout) Bindings() map[string]int {
	out := make(map[string]int, len(l.keys))
	for i, key := range l.keys {
		out[key] = i - l.anchor
	}
	return out
}
