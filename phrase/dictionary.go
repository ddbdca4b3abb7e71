// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package phrase

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Dictionary is the word list backing membership checks.  Reload replaces
// the whole set atomically, so lookups racing a reload see either the old
// or the new list, never a partial one.
type Dictionary struct {
	mtx   sync.RWMutex
	path  string
	words map[string]struct{}
}

// LoadDictionary reads the word list at path, one word per line.  Blank
// lines and lines starting with '#' are skipped.
func LoadDictionary(path string) (*Dictionary, error) {
	d := &Dictionary{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the word list from the original path.
func (d *Dictionary) Reload() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("open dictionary: %v", err)
	}
	defer f.Close()

	words := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dictionary: %v", err)
	}

	d.mtx.Lock()
	d.words = words
	d.mtx.Unlock()

	log.Infof("Dictionary loaded: %d words from %s", len(words), d.path)
	return nil
}

// Contains reports whether the uppercase word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	d.mtx.RLock()
	_, ok := d.words[word]
	d.mtx.RUnlock()
	return ok
}

// Len returns the number of loaded words.
func (d *Dictionary) Len() int {
	d.mtx.RLock()
	n := len(d.words)
	d.mtx.RUnlock()
	return n
}
