// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package results

import (
	"context"
	"encoding/json"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"
)

// SchemaVersion is the version of the packaged-results format. Bump it
// whenever the payload shape changes incompatibly, so viewers can
// refuse data they do not understand.
const SchemaVersion = 3

// Config holds the plain configuration values a Service needs. Flag
// parsing happens elsewhere; the service only ever sees these.
type Config struct {
	// ActualsDir is the root of the actual-results tree.
	ActualsDir string
	// ExpectedDir is the root of the expected-results (baseline) tree.
	ExpectedDir string
	// DiffStore provides diff handles for comparison records.
	DiffStore DiffStore
}

// Service is an immutable snapshot of both result trees, reconciled at
// construction time.
//
// EditExpectations mutates the files on disk but never this snapshot;
// to observe an edit, construct a new Service.
type Service struct {
	cfg       Config
	set       *RecordSet
	timestamp time.Time
}

// NewService loads both trees and reconciles them, synchronously. Every
// directory walk, document decode and diff-store call happens before
// NewService returns.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	start := clock.Now(ctx)

	actuals, err := ReadActualTrees(ctx, cfg.ActualsDir)
	if err != nil {
		return nil, err
	}
	expected, err := ReadExpectedTrees(ctx, cfg.ExpectedDir)
	if err != nil {
		return nil, err
	}
	set, err := Reconcile(ctx, actuals, expected, cfg.DiffStore)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		set:       set,
		timestamp: clock.Now(ctx),
	}
	logging.Fields{
		"duration": s.timestamp.Sub(start),
		"all":      set.all.Len(),
		"failures": set.failures.Len(),
	}.Infof(ctx, "Results complete")
	return s, nil
}

// Timestamp returns the time at which the snapshot was completed.
func (s *Service) Timestamp() time.Time {
	return s.timestamp
}

// ResultsOfType returns the raw partition for kind.
func (s *Service) ResultsOfType(kind ResultKind) (*Partition, error) {
	return s.set.Partition(kind)
}

// Header is the metadata block of a packaged-results payload.
type Header struct {
	SchemaVersion int `json:"schemaVersion"`

	// TimeUpdated is when this snapshot was built, in seconds since
	// the Unix epoch. TimeNextUpdateAvailable, when set, is when the
	// caller should check back for fresher data.
	TimeUpdated             int64  `json:"timeUpdated"`
	TimeNextUpdateAvailable *int64 `json:"timeNextUpdateAvailable"`

	Type ResultKind `json:"type"`

	// DataToken identifies the exact record content of this payload.
	// Editors must echo it back, which pins their edits to the dataset
	// they were actually looking at.
	DataToken string `json:"dataToken"`

	IsEditable bool `json:"isEditable"`
	IsExported bool `json:"isExported"`
}

// PackagedResults is a partition plus its header, ready to serialize
// for the viewer.
type PackagedResults struct {
	Header    Header
	Partition *Partition
}

// MarshalJSON merges the header into the partition payload.
func (p *PackagedResults) MarshalJSON() ([]byte, error) {
	b, err := p.Partition.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	h, err := json.Marshal(&p.Header)
	if err != nil {
		return nil, err
	}
	m["header"] = json.RawMessage(h)
	return json.Marshal(m)
}

// PackagedResultsOfType packages the partition for kind with a header.
// reloadSeconds, when non-nil, announces that fresher results may be
// available that many seconds after this snapshot was built.
func (s *Service) PackagedResultsOfType(ctx context.Context, kind ResultKind, reloadSeconds *int64, isEditable, isExported bool) (*PackagedResults, error) {
	partition, err := s.set.Partition(kind)
	if err != nil {
		return nil, err
	}

	updated := s.timestamp.Unix()
	var next *int64
	if reloadSeconds != nil {
		n := updated + *reloadSeconds
		next = &n
	}
	return &PackagedResults{
		Header: Header{
			SchemaVersion:           SchemaVersion,
			TimeUpdated:             updated,
			TimeNextUpdateAvailable: next,
			Type:                    kind,
			DataToken:               partition.DataToken(),
			IsEditable:              isEditable,
			IsExported:              isExported,
		},
		Partition: partition,
	}, nil
}

// EditExpectations applies baseline edits against the expected tree on
// disk. The receiver's snapshot is left untouched.
func (s *Service) EditExpectations(ctx context.Context, mods []*Modification) error {
	return ApplyModifications(ctx, mods, s.cfg.ExpectedDir)
}
