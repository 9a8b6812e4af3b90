// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package model provides the types for per-builder image-test result
// documents: the actual-results files written out by a test run and the
// expected-results (baseline) files checked in next to them.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Digest is a 64-bit unsigned image checksum value.
//
// Digests are stored on disk as unsigned decimal numbers. Many of them
// exceed 2^53, so decoding must not round-trip through float64; the
// codec below parses the raw token instead. A quoted string is accepted
// as well, since some producers emit digests that way.
type Digest uint64

// UnmarshalJSON unmarshals data into d. data is expected to be a JSON
// number or a JSON string holding an unsigned decimal integer.
func (d *Digest) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	num, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("model: digest %q must be an unsigned integer: %v", data, err)
	}
	*d = Digest(num)
	return nil
}

// MarshalJSON marshals d into a JSON number.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(d), 10)), nil
}

func (d Digest) String() string {
	return strconv.FormatUint(uint64(d), 10)
}

// DigestPair is an (algorithm, digest) pair identifying one image.
//
// On disk it is the two-element array ["bitmap-64bitMD5", 12345].
type DigestPair struct {
	HashType string
	Digest   Digest
}

// MarshalJSON marshals p into the on-disk two-element array form.
func (p DigestPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.HashType, p.Digest})
}

// UnmarshalJSON unmarshals the supplied data into p.
//
// A JSON null is accepted and leaves p zero; an actual-results file may
// record an image with no digest at all.
func (p *DigestPair) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = DigestPair{}
		return nil
	}

	var tmp []json.RawMessage
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	if len(tmp) != 2 {
		return fmt.Errorf("model: digest pair wrong length: %d, expect: 2", len(tmp))
	}
	if err := json.Unmarshal(tmp[0], &p.HashType); err != nil {
		return fmt.Errorf("model: digest pair hash type: %v", err)
	}
	if p.HashType == "" {
		return fmt.Errorf("model: digest pair has empty hash type")
	}
	return p.Digest.UnmarshalJSON(tmp[1])
}

// IsZero reports whether p records no image at all.
func (p DigestPair) IsZero() bool {
	return p.HashType == ""
}
