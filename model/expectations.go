// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// expectedResultsKey is the single top-level key of an expected-results
// document.
const expectedResultsKey = "expected-results"

// ExpectationMeta holds the metadata fields of an expectation entry
// that pass through edits verbatim. Nil pointer/slice fields are
// absent from the document, which is distinct from false/empty.
type ExpectationMeta struct {
	Bugs          []int64 `json:"bugs,omitempty"`
	IgnoreFailure *bool   `json:"ignore-failure,omitempty"`
	Reviewed      *bool   `json:"reviewed-by-human,omitempty"`
}

// ExpectationEntry is one image's baseline: the digests the baseline
// accepts as correct (the first is authoritative), plus metadata.
type ExpectationEntry struct {
	AllowedDigests []DigestPair
	ExpectationMeta
}

type expectationEntryAux struct {
	AllowedDigests []DigestPair `json:"allowed-digests"`
	ExpectationMeta
}

// MarshalJSON marshals e into the on-disk entry shape.
func (e *ExpectationEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(&expectationEntryAux{
		AllowedDigests:  e.AllowedDigests,
		ExpectationMeta: e.ExpectationMeta,
	})
}

// UnmarshalJSON unmarshals the supplied data into e.
func (e *ExpectationEntry) UnmarshalJSON(data []byte) error {
	var aux expectationEntryAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.AllowedDigests = aux.AllowedDigests
	e.ExpectationMeta = aux.ExpectationMeta
	return nil
}

// LookupStatus says whether an expectation lookup found a usable entry,
// and if not, why. The reason drives the warning-suppression rule in
// reconciliation, so it is an explicit code rather than an error type.
type LookupStatus int

const (
	// ExpectationFound means a well-formed entry exists.
	ExpectationFound = LookupStatus(iota)
	// NoSuchBuilder means the expected tree has no document for the
	// builder at all.
	NoSuchBuilder
	// NoSuchImage means the builder's document has no entry for the
	// image.
	NoSuchImage
	// MalformedEntry means an entry exists but allows no digests, so
	// it cannot produce an expected image reference.
	MalformedEntry
)

func (s LookupStatus) String() string {
	switch s {
	case ExpectationFound:
		return "found"
	case NoSuchBuilder:
		return "no-such-builder"
	case NoSuchImage:
		return "no-such-image"
	case MalformedEntry:
		return "malformed-entry"
	}
	return fmt.Sprintf("LookupStatus(%d)", int(s))
}

// ExpectedResults is one builder's expected-results document: the
// baseline entry for each image name. JSON object keys guarantee at
// most one entry per image.
type ExpectedResults struct {
	Expectations map[string]*ExpectationEntry
}

// Lookup returns the entry for the given image name and a status code.
// The entry is non-nil only when the status is ExpectationFound.
func (e *ExpectedResults) Lookup(imageName string) (*ExpectationEntry, LookupStatus) {
	entry, ok := e.Expectations[imageName]
	switch {
	case !ok || entry == nil:
		return nil, NoSuchImage
	case len(entry.AllowedDigests) == 0:
		return nil, MalformedEntry
	}
	return entry, ExpectationFound
}

// Set replaces the entry for imageName. Replacement is total: nothing
// from a prior entry is merged in.
func (e *ExpectedResults) Set(imageName string, entry *ExpectationEntry) {
	if e.Expectations == nil {
		e.Expectations = map[string]*ExpectationEntry{}
	}
	e.Expectations[imageName] = entry
}

// ImageNames returns the image names with entries, in sorted order.
func (e *ExpectedResults) ImageNames() []string {
	names := make([]string, 0, len(e.Expectations))
	for name := range e.Expectations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON marshals e into the on-disk document shape.
func (e *ExpectedResults) MarshalJSON() ([]byte, error) {
	expectations := e.Expectations
	if expectations == nil {
		expectations = map[string]*ExpectationEntry{}
	}
	return json.Marshal(map[string]map[string]*ExpectationEntry{
		expectedResultsKey: expectations,
	})
}

// UnmarshalJSON decodes an expected-results document into e.
//
// A document whose "expected-results" section is null or absent decodes
// as empty. Builders that have never been baselined write such files,
// and they must not abort a load.
func (e *ExpectedResults) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	raw, ok := m[expectedResultsKey]
	if !ok {
		e.Expectations = nil
		return nil
	}
	if err := json.Unmarshal(raw, &e.Expectations); err != nil {
		return fmt.Errorf("model: key %q: %v", expectedResultsKey, err)
	}
	return nil
}
