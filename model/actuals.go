// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// actualResultsKey is the single top-level key of an actual-results
// document.
const actualResultsKey = "actual-results"

// ResultType classifies one actual result against its baseline.
type ResultType string

// The fixed set of classifications an actual-results file may record.
const (
	ResultFailed         = ResultType("failed")
	ResultFailureIgnored = ResultType("failure-ignored")
	ResultNoComparison   = ResultType("no-comparison")
	ResultSucceeded      = ResultType("succeeded")
)

// AllResultTypes lists every valid ResultType, in sorted order.
var AllResultTypes = []ResultType{
	ResultFailed,
	ResultFailureIgnored,
	ResultNoComparison,
	ResultSucceeded,
}

// Valid reports whether t is one of the known classifications.
func (t ResultType) Valid() bool {
	switch t {
	case ResultFailed, ResultFailureIgnored, ResultNoComparison, ResultSucceeded:
		return true
	}
	return false
}

// ActualResults is one builder's actual-results document: for each
// classification, the images recorded under it and their digests.
//
// The layering is validated once, at decode time, so a malformed file
// fails with an error naming the offending key instead of surfacing as
// an opaque lookup failure during reconciliation.
type ActualResults struct {
	// ByType maps classification -> image name -> digest pair.
	// A classification whose section is null in the file maps to an
	// empty (nil) inner map.
	ByType map[ResultType]map[string]DigestPair
}

// ResultTypes returns the classifications present in the document, in
// sorted order.
func (a *ActualResults) ResultTypes() []ResultType {
	types := make([]ResultType, 0, len(a.ByType))
	for t := range a.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ImageNames returns the image names recorded under the given
// classification, in sorted order.
func (a *ActualResults) ImageNames(t ResultType) []string {
	names := make([]string, 0, len(a.ByType[t]))
	for name := range a.ByType[t] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON marshals a into the on-disk document shape.
func (a *ActualResults) MarshalJSON() ([]byte, error) {
	byType := make(map[ResultType]map[string]DigestPair, len(a.ByType))
	for t, images := range a.ByType {
		if images == nil {
			images = map[string]DigestPair{}
		}
		byType[t] = images
	}
	return json.Marshal(map[string]map[ResultType]map[string]DigestPair{
		actualResultsKey: byType,
	})
}

// UnmarshalJSON decodes an actual-results document into a.
//
// The document must carry the "actual-results" top-level key, and every
// classification under it must come from the fixed four-value set.
func (a *ActualResults) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	raw, ok := m[actualResultsKey]
	if !ok {
		return fmt.Errorf("model: missing key %q", actualResultsKey)
	}

	var byType map[ResultType]json.RawMessage
	if err := json.Unmarshal(raw, &byType); err != nil {
		return fmt.Errorf("model: key %q: %v", actualResultsKey, err)
	}

	a.ByType = make(map[ResultType]map[string]DigestPair, len(byType))
	for t, rawImages := range byType {
		if !t.Valid() {
			return fmt.Errorf("model: unknown result type %q", t)
		}
		var images map[string]DigestPair
		if err := json.Unmarshal(rawImages, &images); err != nil {
			return fmt.Errorf("model: result type %q: %v", t, err)
		}
		a.ByType[t] = images
	}
	return nil
}
