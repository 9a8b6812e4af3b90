// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package diffstore provides a disk-backed, memoizing implementation of
// the results.DiffStore contract: given a pair of image references it
// hands out a stable diff handle, caching handles so repeated
// reconciliations of the same pair cost nothing.
package diffstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"go.chromium.org/luci/common/errors"

	"rebaseline/model"
	"rebaseline/results"
)

const recordsDirName = "records"

// Disk is a results.DiffStore keeping its handles under a work
// directory. Handles are memoized in memory and persisted as JSON files
// so a later process reuses them.
//
// Disk is safe for concurrent use.
type Disk struct {
	workDir string

	mu    sync.Mutex
	cache map[string]*results.DiffRecord
}

var _ results.DiffStore = (*Disk)(nil)

// New returns a Disk rooted at workDir, creating the directory layout
// if needed.
func New(workDir string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Join(workDir, recordsDirName), 0755); err != nil {
		return nil, errors.Annotate(err, "creating diff store work dir %s", workDir).Err()
	}
	return &Disk{
		workDir: workDir,
		cache:   map[string]*results.DiffRecord{},
	}, nil
}

// Get returns the diff handle for the (expected, actual) reference
// pair. Either reference may be nil; a nil side means there is no image
// to compare on that side, which still yields a handle (the viewer
// shows the single image). A reference that does not parse as a
// relative image URL is an error.
func (d *Disk) Get(ctx context.Context, expectedURL, actualURL *string) (*results.DiffRecord, error) {
	key := pairKey(expectedURL, actualURL)

	d.mu.Lock()
	rec, ok := d.cache[key]
	d.mu.Unlock()
	if ok {
		return rec, nil
	}

	if rec, ok = d.loadRecord(key); !ok {
		var err error
		if rec, err = d.makeRecord(expectedURL, actualURL); err != nil {
			return nil, err
		}
		if err := d.storeRecord(key, rec); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.cache[key] = rec
	d.mu.Unlock()
	return rec, nil
}

// makeRecord builds the handle for a previously unseen pair.
func (d *Disk) makeRecord(expectedURL, actualURL *string) (*results.DiffRecord, error) {
	var expected, actual *model.DigestPair
	var test string
	for _, side := range []struct {
		url  *string
		pair **model.DigestPair
	}{
		{expectedURL, &expected},
		{actualURL, &actual},
	} {
		if side.url == nil {
			continue
		}
		t, pair, err := model.SplitRelativeURL(*side.url)
		if err != nil {
			return nil, errors.Annotate(err, "diff store").Err()
		}
		test = t
		*side.pair = &pair
	}

	rec := &results.DiffRecord{}
	if expected == nil || actual == nil {
		return rec, nil
	}
	if *expected == *actual {
		rec.Identical = true
		return rec, nil
	}

	// The rendered difference images live at deterministic locations
	// derived from the two digests, so any process that computes them
	// later agrees with the handles issued here.
	stem := test + "_" + expected.Digest.String() + "-vs-" + actual.Digest.String()
	rec.DiffURL = fileURL(filepath.Join(d.workDir, "diffs", stem+".png"))
	rec.WhiteDiffURL = fileURL(filepath.Join(d.workDir, "whitediffs", stem+".png"))
	return rec, nil
}

func (d *Disk) recordPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.workDir, recordsDirName, hex.EncodeToString(sum[:])+".json")
}

func (d *Disk) loadRecord(key string) (*results.DiffRecord, bool) {
	b, err := ioutil.ReadFile(d.recordPath(key))
	if err != nil {
		return nil, false
	}
	rec := &results.DiffRecord{}
	if err := json.Unmarshal(b, rec); err != nil {
		// A corrupt persisted record is recomputed, not fatal.
		return nil, false
	}
	return rec, true
}

func (d *Disk) storeRecord(key string, rec *results.DiffRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(d.recordPath(key), b, 0644); err != nil {
		return errors.Annotate(err, "persisting diff record").Err()
	}
	return nil
}

func pairKey(expectedURL, actualURL *string) string {
	k := ""
	if expectedURL != nil {
		k = *expectedURL
	}
	k += "|"
	if actualURL != nil {
		k += *actualURL
	}
	return k
}

func fileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}
