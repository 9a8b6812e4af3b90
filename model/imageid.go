// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
)

// imageNameExt is the extension every image name carries.
const imageNameExt = ".png"

// FormatImageName returns the image name for a (test, config) pair,
// e.g. ("bigmatrix", "8888") -> "bigmatrix_8888.png".
//
// Test names may themselves contain underscores; config names may not.
// ParseImageName relies on that to recover the pair exactly.
func FormatImageName(test, config string) string {
	return test + "_" + config + imageNameExt
}

// ParseImageName recovers the (test, config) pair an image name was
// built from. ParseImageName(FormatImageName(test, config)) returns
// exactly (test, config) for any well-formed pair; this round trip is
// a hard contract with the files on disk.
//
// A name that cannot have been produced by FormatImageName yields an
// error. Callers treat that as corrupt upstream data, not as a
// recoverable condition.
func ParseImageName(name string) (test, config string, err error) {
	if !strings.HasSuffix(name, imageNameExt) {
		return "", "", fmt.Errorf("model: image name %q does not end in %q", name, imageNameExt)
	}
	base := strings.TrimSuffix(name, imageNameExt)
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", fmt.Errorf("model: image name %q is not of the form <test>_<config>%s", name, imageNameExt)
	}
	test, config = base[:i], base[i+1:]
	if strings.ContainsAny(test, " \t") || strings.ContainsAny(config, " \t") {
		return "", "", fmt.Errorf("model: image name %q contains whitespace", name)
	}
	return test, config, nil
}
