// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package results loads per-builder result trees from disk, reconciles
// actual outcomes against baselines into classified comparison records,
// and writes baseline edits back.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"rebaseline/model"
)

// DefaultFilePattern matches the result files within a tree.
const DefaultFilePattern = "*.json"

// NotFoundError is returned when a tree root does not exist or is not
// a directory. It is fatal: without a root there is no tree to load.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("results: no directory found at path %s", e.Path)
}

// ignoredBuilderMarkers are substrings identifying builders run under
// continuous-testing infrastructure we keep no baselines for.
var ignoredBuilderMarkers = []string{"Valgrind", "TSAN", "ASAN"}

// IgnoreBuilder reports whether expectations and actuals for a builder
// should be ignored entirely. Trybots and sanitizer builders have no
// baselines to maintain, and letting them through breaks rebaselining.
func IgnoreBuilder(builder string) bool {
	if strings.HasSuffix(builder, "-Trybot") {
		return true
	}
	for _, marker := range ignoredBuilderMarkers {
		if strings.Contains(builder, marker) {
			return true
		}
	}
	return false
}

// treePaths walks the tree rooted at root and returns the path of each
// file whose base name matches pattern, keyed by builder name. The
// builder name is the base of the file's parent directory; ignored
// builders are skipped. If a builder directory holds several matching
// files the last one walked wins (directories are expected to hold
// exactly one).
func treePaths(root, pattern string) (map[string]string, error) {
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return nil, &NotFoundError{Path: root}
	}

	paths := map[string]string{}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err != nil || !matched {
			return err
		}
		builder := filepath.Base(filepath.Dir(path))
		if IgnoreBuilder(builder) {
			return nil
		}
		paths[builder] = path
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "walking result tree %s", root).Err()
	}
	return paths, nil
}

// decodeFile reads one result document from path into doc.
func decodeFile(path string, doc json.Unmarshaler) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return doc.UnmarshalJSON(b)
}

// ReadActualTrees loads every builder's actual-results document under
// root. Decode failures are fatal and name the offending file.
func ReadActualTrees(ctx context.Context, root string) (map[string]*model.ActualResults, error) {
	logging.Infof(ctx, "Reading actual-results files from %s", root)
	paths, err := treePaths(root, DefaultFilePattern)
	if err != nil {
		return nil, err
	}
	trees := make(map[string]*model.ActualResults, len(paths))
	for builder, path := range paths {
		doc := &model.ActualResults{}
		if err := decodeFile(path, doc); err != nil {
			return nil, errors.Annotate(err, "actual results for builder %q (%s)", builder, path).Err()
		}
		trees[builder] = doc
	}
	return trees, nil
}

// ReadExpectedTrees loads every builder's expected-results document
// under root.
func ReadExpectedTrees(ctx context.Context, root string) (map[string]*model.ExpectedResults, error) {
	logging.Infof(ctx, "Reading expected-results files from %s", root)
	paths, err := treePaths(root, DefaultFilePattern)
	if err != nil {
		return nil, err
	}
	trees := make(map[string]*model.ExpectedResults, len(paths))
	for builder, path := range paths {
		doc := &model.ExpectedResults{}
		if err := decodeFile(path, doc); err != nil {
			return nil, errors.Annotate(err, "expected results for builder %q (%s)", builder, path).Err()
		}
		trees[builder] = doc
	}
	return trees, nil
}
