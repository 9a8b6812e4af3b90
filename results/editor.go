// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"rebaseline/model"
)

// Modification is one requested baseline edit: for (builder, test,
// config), allow the digest named by NewImageURL, and set any non-nil
// verbatim metadata fields. The new entry replaces the old one
// entirely; nothing is merged.
type Modification struct {
	Builder string
	Test    string
	Config  string

	// NewImageURL is a relative image URL (as found in a Record's
	// ActualURL) naming the digest the baseline should accept.
	NewImageURL string

	Meta model.ExpectationMeta
}

type modificationAux struct {
	Expectations model.ExpectationMeta `json:"expectations"`
	ExtraColumns map[string]string     `json:"extraColumns"`
	NewImageURL  string                `json:"newImageUrl"`
}

// MarshalJSON marshals m into the wire shape editors submit.
func (m *Modification) MarshalJSON() ([]byte, error) {
	return json.Marshal(&modificationAux{
		Expectations: m.Meta,
		ExtraColumns: map[string]string{
			ColumnBuilder: m.Builder,
			ColumnTest:    m.Test,
			ColumnConfig:  m.Config,
		},
		NewImageURL: m.NewImageURL,
	})
}

// UnmarshalJSON unmarshals the supplied data into m.
func (m *Modification) UnmarshalJSON(data []byte) error {
	var aux modificationAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Builder = aux.ExtraColumns[ColumnBuilder]
	m.Test = aux.ExtraColumns[ColumnTest]
	m.Config = aux.ExtraColumns[ColumnConfig]
	m.NewImageURL = aux.NewImageURL
	m.Meta = aux.Expectations
	return nil
}

// BuilderSetMismatchError is returned when the set of builders written
// back diverges from the set of builders loaded. It signals an
// inconsistency between writer and loader: some file would be silently
// skipped, or a modification names a builder with no file to land in.
type BuilderSetMismatchError struct {
	Loaded  []string
	Written []string
}

func (e *BuilderSetMismatchError) Error() string {
	return fmt.Sprintf(
		"results: expected to write expectations for builders %v, but wrote them for builders %v",
		e.Loaded, e.Written)
}

// ApplyModifications applies baseline edits and persists them.
//
// The expected tree is always reloaded fresh from disk first, so the
// edits land on the latest on-disk state rather than on whatever
// snapshot the caller has been reading. Modifications apply in input
// order; when two target the same (builder, image), the later one
// wins. Only files that already exist under expectedRoot are ever
// rewritten; no file is created.
//
// A modification naming a builder absent from the reloaded tree fails
// with *BuilderSetMismatchError before anything is written. The same
// error after the write loop means a file was skipped; files already
// written stay written (there is no rollback across files).
func ApplyModifications(ctx context.Context, mods []*Modification, expectedRoot string) error {
	trees, err := ReadExpectedTrees(ctx, expectedRoot)
	if err != nil {
		return err
	}

	loaded := stringset.New(len(trees))
	for builder := range trees {
		loaded.Add(builder)
	}

	for _, mod := range mods {
		doc, ok := trees[mod.Builder]
		if !ok {
			return &BuilderSetMismatchError{
				Loaded:  loaded.ToSortedSlice(),
				Written: []string{mod.Builder},
			}
		}
		imageName := model.FormatImageName(mod.Test, mod.Config)
		_, pair, err := model.SplitRelativeURL(mod.NewImageURL)
		if err != nil {
			return errors.Annotate(err, "modification for builder %q image %q", mod.Builder, imageName).Err()
		}
		doc.Set(imageName, &model.ExpectationEntry{
			AllowedDigests:  []model.DigestPair{pair},
			ExpectationMeta: mod.Meta,
		})
		logging.Fields{
			"builder": mod.Builder,
			"image":   imageName,
			"digest":  pair.Digest,
		}.Infof(ctx, "Updated expectation")
	}

	return writeTrees(ctx, trees, expectedRoot)
}

// writeTrees persists every builder's document back to the file it
// currently lives in. The root is re-walked at write time, so only
// files that exist right now are rewritten: a file that vanished since
// the load is never recreated, it is skipped and caught by the set
// verification below. A file whose builder was never loaded (for
// example, one that appeared since) is left alone.
func writeTrees(ctx context.Context, trees map[string]*model.ExpectedResults, root string) error {
	paths, err := treePaths(root, DefaultFilePattern)
	if err != nil {
		return err
	}

	written := stringset.New(len(trees))
	for builder, path := range paths {
		doc, ok := trees[builder]
		if !ok {
			continue
		}
		if err := writeDocument(doc, path); err != nil {
			return errors.Annotate(err, "writing expectations for builder %q", builder).Err()
		}
		written.Add(builder)
	}

	loaded := stringset.New(len(trees))
	for builder := range trees {
		loaded.Add(builder)
	}
	if written.Len() != loaded.Len() {
		return &BuilderSetMismatchError{
			Loaded:  loaded.ToSortedSlice(),
			Written: written.ToSortedSlice(),
		}
	}
	return nil
}

// writeDocument writes one expected-results document to path, matching
// the formatting the files are maintained in (indented, trailing
// newline).
func writeDocument(doc *model.ExpectedResults, path string) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, append(b, '\n'), 0644)
}
