// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package results

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"go.chromium.org/luci/common/data/stringset"

	"rebaseline/model"
)

// Column identifiers registered for downstream filtering UIs.
const (
	ColumnResultType = "resultType"
	ColumnBuilder    = "builder"
	ColumnTest       = "test"
	ColumnConfig     = "config"
)

// Descriptions of the two images in every comparison record.
const (
	descriptionExpected = "expected image"
	descriptionActual   = "actual image"
)

// Record is one reconciled comparison between a builder's actual
// result for an image and its baseline.
type Record struct {
	Builder string
	Test    string
	Config  string

	// ResultType is the final classification, after reclassifying
	// stale failures whose baseline has caught up.
	ResultType model.ResultType

	// ExpectedURL and ActualURL are image references relative to
	// model.ActualsRootURL. Either may be nil: no baseline exists, or
	// the actual run recorded no digest.
	ExpectedURL *string
	ActualURL   *string

	// Expectations carries the baseline's verbatim metadata, when a
	// baseline entry was found.
	Expectations *model.ExpectationMeta

	// Diff is the handle obtained from the diff store.
	Diff *DiffRecord
}

// isDifferent reports whether the two image references resolve to
// different images (or only one of them resolves).
func (r *Record) isDifferent() bool {
	if r.ExpectedURL == nil || r.ActualURL == nil {
		return true
	}
	return *r.ExpectedURL != *r.ActualURL
}

type recordAux struct {
	ImageAURL    *string                `json:"imageAUrl"`
	ImageBURL    *string                `json:"imageBUrl"`
	IsDifferent  bool                   `json:"isDifferent"`
	Expectations *model.ExpectationMeta `json:"expectations,omitempty"`
	ExtraColumns map[string]string      `json:"extraColumns"`
	Diff         *DiffRecord            `json:"diff,omitempty"`
}

// MarshalJSON marshals r into the shape the viewer consumes.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(&recordAux{
		ImageAURL:    r.ExpectedURL,
		ImageBURL:    r.ActualURL,
		IsDifferent:  r.isDifferent(),
		Expectations: r.Expectations,
		ExtraColumns: map[string]string{
			ColumnResultType: string(r.ResultType),
			ColumnBuilder:    r.Builder,
			ColumnTest:       r.Test,
			ColumnConfig:     r.Config,
		},
		Diff: r.Diff,
	})
}

// Partition is one queryable view over reconciled records: the record
// list plus a registry of the distinct values observed per column.
//
// Insertion order is irrelevant; the record list is sorted whenever it
// is observed, so parallel producers cannot perturb serialized output.
type Partition struct {
	records []*Record
	columns map[string]stringset.Set
}

func newPartition(seedResultTypes []model.ResultType) *Partition {
	p := &Partition{
		columns: map[string]stringset.Set{
			ColumnResultType: stringset.New(len(seedResultTypes)),
			ColumnBuilder:    stringset.New(0),
			ColumnTest:       stringset.New(0),
			ColumnConfig:     stringset.New(0),
		},
	}
	// Pre-seeded so the viewer's filter axes are complete even when a
	// classification has no records yet.
	for _, t := range seedResultTypes {
		p.columns[ColumnResultType].Add(string(t))
	}
	return p
}

func (p *Partition) add(r *Record) {
	p.records = append(p.records, r)
	p.columns[ColumnResultType].Add(string(r.ResultType))
	p.columns[ColumnBuilder].Add(r.Builder)
	p.columns[ColumnTest].Add(r.Test)
	p.columns[ColumnConfig].Add(r.Config)
}

// Len returns the number of records in the partition.
func (p *Partition) Len() int {
	return len(p.records)
}

// Records returns the partition's records sorted by (builder, test,
// config, resultType).
func (p *Partition) Records() []*Record {
	out := make([]*Record, len(p.records))
	copy(out, p.records)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Builder != b.Builder:
			return a.Builder < b.Builder
		case a.Test != b.Test:
			return a.Test < b.Test
		case a.Config != b.Config:
			return a.Config < b.Config
		}
		return a.ResultType < b.ResultType
	})
	return out
}

// ColumnValues returns the distinct values observed per column, sorted.
func (p *Partition) ColumnValues() map[string][]string {
	out := make(map[string][]string, len(p.columns))
	for id, set := range p.columns {
		out[id] = set.ToSortedSlice()
	}
	return out
}

// DataToken returns a fixed-width digest of the partition's current
// record content: the sha256 of the canonical serialization of the
// sorted record list. Two partitions holding the same records produce
// the same token in any process; editors echo it back so edits against
// a stale dataset are detectable.
func (p *Partition) DataToken() string {
	b, err := json.Marshal(p.Records())
	if err != nil {
		// Records marshal from plain fields; this cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

type partitionAux struct {
	ImagePairs   []*Record           `json:"imagePairs"`
	ColumnValues map[string][]string `json:"columnValues"`
	ImageSets    map[string]imageSet `json:"imageSets"`
}

type imageSet struct {
	Description string `json:"description"`
	BaseURL     string `json:"baseUrl"`
}

// MarshalJSON marshals p into the viewer payload.
func (p *Partition) MarshalJSON() ([]byte, error) {
	return json.Marshal(&partitionAux{
		ImagePairs:   p.Records(),
		ColumnValues: p.ColumnValues(),
		ImageSets: map[string]imageSet{
			"imageA": {Description: descriptionExpected, BaseURL: model.ActualsRootURL},
			"imageB": {Description: descriptionActual, BaseURL: model.ActualsRootURL},
		},
	})
}

// RecordSet aggregates reconciled records into the two partitions
// consumers query: every record, and the records whose final
// classification is not succeeded.
type RecordSet struct {
	all      *Partition
	failures *Partition
}

// NewRecordSet returns an empty RecordSet with the partitions'
// resultType registries pre-seeded.
func NewRecordSet() *RecordSet {
	return &RecordSet{
		all: newPartition(model.AllResultTypes),
		failures: newPartition([]model.ResultType{
			model.ResultFailed,
			model.ResultFailureIgnored,
			model.ResultNoComparison,
		}),
	}
}

// Add places r in the all partition, and in the failures partition iff
// its final classification is not succeeded.
func (s *RecordSet) Add(r *Record) {
	s.all.add(r)
	if r.ResultType != model.ResultSucceeded {
		s.failures.add(r)
	}
}

// ResultKind selects one of the two partitions.
type ResultKind string

// The partition selectors.
const (
	KindAll      = ResultKind("all")
	KindFailures = ResultKind("failures")
)

// Partition returns the partition for kind.
func (s *RecordSet) Partition(kind ResultKind) (*Partition, error) {
	switch kind {
	case KindAll:
		return s.all, nil
	case KindFailures:
		return s.failures, nil
	}
	return nil, fmt.Errorf("results: unknown result kind %q", kind)
}
