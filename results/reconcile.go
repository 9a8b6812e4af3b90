// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package results

import (
	"context"
	"sort"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"

	"rebaseline/model"
)

// DiffRecord is the handle a DiffStore returns for one comparison.
type DiffRecord struct {
	// Identical is true when both references resolve to the same image.
	Identical bool `json:"identical"`

	// DiffURL and WhiteDiffURL locate the rendered difference images
	// for a non-identical pair, when the store provides them.
	DiffURL      string `json:"diffUrl,omitempty"`
	WhiteDiffURL string `json:"whiteDiffUrl,omitempty"`
}

// DiffStore produces a diff handle for a pair of image references,
// either of which may be nil. Caching is the store's own concern. Any
// error is treated as affecting that one comparison only; it never
// aborts a reconciliation batch.
type DiffStore interface {
	Get(ctx context.Context, expectedURL, actualURL *string) (*DiffRecord, error)
}

var (
	recordsReconciled = metric.NewCounter(
		"rebaseline/reconcile/records",
		"Comparison records added to the record set.",
		nil,
		field.String("builder"))
	recordsDropped = metric.NewCounter(
		"rebaseline/reconcile/dropped",
		"Comparison records dropped because the diff store failed.",
		nil,
		field.String("builder"))
)

// Reconcile cross-references every builder's actual results against its
// baseline and aggregates the classified records into a RecordSet.
//
// Builders, classifications within a builder, and images within a
// classification are all processed in sorted order, so logs and any
// digest of the output are deterministic. An empty actual tree is not
// an error; it yields an empty record set.
func Reconcile(ctx context.Context, actuals map[string]*model.ActualResults, expected map[string]*model.ExpectedResults, diffs DiffStore) (*RecordSet, error) {
	set := NewRecordSet()

	builders := make([]string, 0, len(actuals))
	for builder := range actuals {
		builders = append(builders, builder)
	}
	sort.Strings(builders)

	for i, builder := range builders {
		logging.Infof(ctx, "Reconciling builder %d of %d, %q", i+1, len(builders), builder)
		if err := reconcileBuilder(ctx, set, builder, actuals[builder], expected[builder], diffs); err != nil {
			return nil, errors.Annotate(err, "builder %q", builder).Err()
		}
	}
	return set, nil
}

func reconcileBuilder(ctx context.Context, set *RecordSet, builder string, actual *model.ActualResults, expected *model.ExpectedResults, diffs DiffStore) error {
	for _, resultType := range actual.ResultTypes() {
		for _, imageName := range actual.ImageNames(resultType) {
			// A name that does not parse means the actual tree itself
			// is corrupt; there is no record we could emit for it.
			test, config, err := model.ParseImageName(imageName)
			if err != nil {
				return err
			}

			var actualURL *string
			if pair := actual.ByType[resultType][imageName]; !pair.IsZero() {
				actualURL = stringPtr(model.CreateRelativeURL(test, pair))
			}

			var expectedURL *string
			var meta *model.ExpectationMeta
			entry, status := lookupExpectation(expected, imageName)
			if status == model.ExpectationFound {
				expectedURL = stringPtr(model.CreateRelativeURL(test, entry.AllowedDigests[0]))
				metaCopy := entry.ExpectationMeta
				meta = &metaCopy
			} else if resultType != model.ResultNoComparison {
				// A no-comparison image with no baseline is the normal
				// state of a brand-new test; anything else deserves
				// exactly one warning.
				logging.Fields{
					"builder":    builder,
					"resultType": resultType,
					"imageName":  imageName,
					"reason":     status,
				}.Warningf(ctx, "No expectations found for test")
			}

			// A failure whose baseline has caught up with the actual
			// digest is stale: the bots have not cycled since the
			// rebaseline landed. Report it as a success.
			finalType := resultType
			if expectedURL != nil && actualURL != nil && *expectedURL == *actualURL {
				finalType = model.ResultSucceeded
			}

			diff, err := diffs.Get(ctx, expectedURL, actualURL)
			if err != nil {
				// Best effort: one bad comparison must not take down
				// the whole batch. The record is dropped from both
				// partitions.
				logging.Fields{
					"builder":     builder,
					"test":        test,
					"config":      config,
					"expectedURL": strOrNone(expectedURL),
					"actualURL":   strOrNone(actualURL),
				}.Warningf(ctx, "Diff store failed, dropping record: %s", err)
				recordsDropped.Add(ctx, 1, builder)
				continue
			}

			set.Add(&Record{
				Builder:      builder,
				Test:         test,
				Config:       config,
				ResultType:   finalType,
				ExpectedURL:  expectedURL,
				ActualURL:    actualURL,
				Expectations: meta,
				Diff:         diff,
			})
			recordsReconciled.Add(ctx, 1, builder)
		}
	}
	return nil
}

// lookupExpectation extends document-level lookup with the tree-level
// miss: a builder with no expected-results document at all.
func lookupExpectation(expected *model.ExpectedResults, imageName string) (*model.ExpectationEntry, model.LookupStatus) {
	if expected == nil {
		return nil, model.NoSuchBuilder
	}
	return expected.Lookup(imageName)
}

func stringPtr(s string) *string { return &s }

func strOrNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}
