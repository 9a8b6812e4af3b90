// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
)

// ActualsRootURL is the base URL under which the relative image URLs
// produced by CreateRelativeURL are served.
const ActualsRootURL = "http://chromium-skia-gm.commondatastorage.googleapis.com/gm"

// CreateRelativeURL returns the URL for an image, relative to
// ActualsRootURL: <hashType>/<test>/<digest>.png.
func CreateRelativeURL(test string, pair DigestPair) string {
	return pair.HashType + "/" + test + "/" + pair.Digest.String() + imageNameExt
}

// SplitRelativeURL recovers the test name and digest pair a relative
// image URL was built from.
func SplitRelativeURL(url string) (test string, pair DigestPair, err error) {
	if !strings.HasSuffix(url, imageNameExt) {
		return "", DigestPair{}, fmt.Errorf("model: image URL %q does not end in %q", url, imageNameExt)
	}
	base := strings.TrimSuffix(url, imageNameExt)
	parts := strings.Split(base, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", DigestPair{}, fmt.Errorf("model: image URL %q is not of the form <hashType>/<test>/<digest>%s", url, imageNameExt)
	}
	var d Digest
	if err := d.UnmarshalJSON([]byte(parts[2])); err != nil {
		return "", DigestPair{}, fmt.Errorf("model: image URL %q: %v", url, err)
	}
	return parts[1], DigestPair{HashType: parts[0], Digest: d}, nil
}
