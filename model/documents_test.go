// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package model

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestActualResults(t *testing.T) {
	t.Parallel()

	Convey("ActualResults", t, func() {
		Convey("Decodes a well-formed document", func() {
			doc := &ActualResults{}
			err := json.Unmarshal([]byte(`{
				"actual-results": {
					"failed": {
						"bigmatrix_8888.png": ["bitmap-64bitMD5", 111]
					},
					"no-comparison": null,
					"succeeded": {
						"xfermodes_565.png": ["bitmap-64bitMD5", 222],
						"xfermodes_8888.png": ["bitmap-64bitMD5", 333]
					}
				}
			}`), doc)
			So(err, ShouldBeNil)

			So(doc.ResultTypes(), ShouldResemble, []ResultType{ResultFailed, ResultNoComparison, ResultSucceeded})
			So(doc.ImageNames(ResultSucceeded), ShouldResemble, []string{"xfermodes_565.png", "xfermodes_8888.png"})
			So(doc.ImageNames(ResultNoComparison), ShouldBeEmpty)
			So(doc.ByType[ResultFailed]["bigmatrix_8888.png"], ShouldResemble, DigestPair{HashType: "bitmap-64bitMD5", Digest: 111})
		})

		Convey("Fails fast on a missing top-level key", func() {
			doc := &ActualResults{}
			err := json.Unmarshal([]byte(`{"something-else": {}}`), doc)
			So(err, ShouldErrLike, "actual-results")
		})

		Convey("Fails fast on an unknown result type", func() {
			doc := &ActualResults{}
			err := json.Unmarshal([]byte(`{"actual-results": {"flaky": {}}}`), doc)
			So(err, ShouldErrLike, "flaky")
		})

		Convey("Names the offending result type on a bad digest", func() {
			doc := &ActualResults{}
			err := json.Unmarshal([]byte(`{"actual-results": {"failed": {"a_b.png": "nope"}}}`), doc)
			So(err, ShouldErrLike, "failed")
		})

		Convey("Round-trips through MarshalJSON", func() {
			doc := &ActualResults{ByType: map[ResultType]map[string]DigestPair{
				ResultFailed: {"a_b.png": {HashType: "bitmap-64bitMD5", Digest: 1}},
			}}
			b, err := json.Marshal(doc)
			So(err, ShouldBeNil)

			decoded := &ActualResults{}
			So(json.Unmarshal(b, decoded), ShouldBeNil)
			So(decoded.ByType, ShouldResemble, doc.ByType)
		})
	})
}

func TestExpectedResults(t *testing.T) {
	t.Parallel()

	Convey("ExpectedResults", t, func() {
		Convey("Decodes a well-formed document", func() {
			doc := &ExpectedResults{}
			err := json.Unmarshal([]byte(`{
				"expected-results": {
					"bigmatrix_8888.png": {
						"allowed-digests": [["bitmap-64bitMD5", 111]],
						"bugs": [1578],
						"reviewed-by-human": true
					}
				}
			}`), doc)
			So(err, ShouldBeNil)

			entry, status := doc.Lookup("bigmatrix_8888.png")
			So(status, ShouldEqual, ExpectationFound)
			So(entry.AllowedDigests, ShouldResemble, []DigestPair{{HashType: "bitmap-64bitMD5", Digest: 111}})
			So(entry.Bugs, ShouldResemble, []int64{1578})
			So(entry.IgnoreFailure, ShouldBeNil)
			So(*entry.Reviewed, ShouldBeTrue)
		})

		Convey("Tolerates a null or absent expected-results section", func() {
			doc := &ExpectedResults{}
			So(json.Unmarshal([]byte(`{"expected-results": null}`), doc), ShouldBeNil)
			So(doc.ImageNames(), ShouldBeEmpty)

			So(json.Unmarshal([]byte(`{}`), doc), ShouldBeNil)
			So(doc.ImageNames(), ShouldBeEmpty)
		})

		Convey("Lookup reports why an entry is unusable", func() {
			doc := &ExpectedResults{}
			err := json.Unmarshal([]byte(`{
				"expected-results": {
					"empty_8888.png": {"allowed-digests": []},
					"null_8888.png": null
				}
			}`), doc)
			So(err, ShouldBeNil)

			_, status := doc.Lookup("missing_8888.png")
			So(status, ShouldEqual, NoSuchImage)

			_, status = doc.Lookup("null_8888.png")
			So(status, ShouldEqual, NoSuchImage)

			_, status = doc.Lookup("empty_8888.png")
			So(status, ShouldEqual, MalformedEntry)
		})

		Convey("Set replaces an entry wholesale", func() {
			doc := &ExpectedResults{}
			reviewed := true
			doc.Set("a_b.png", &ExpectationEntry{
				AllowedDigests:  []DigestPair{{HashType: "bitmap-64bitMD5", Digest: 1}},
				ExpectationMeta: ExpectationMeta{Reviewed: &reviewed},
			})
			doc.Set("a_b.png", &ExpectationEntry{
				AllowedDigests: []DigestPair{{HashType: "bitmap-64bitMD5", Digest: 2}},
			})

			entry, status := doc.Lookup("a_b.png")
			So(status, ShouldEqual, ExpectationFound)
			So(entry.AllowedDigests[0].Digest, ShouldEqual, Digest(2))
			So(entry.Reviewed, ShouldBeNil)
		})

		Convey("Round-trips through MarshalJSON without inventing fields", func() {
			doc := &ExpectedResults{}
			doc.Set("a_b.png", &ExpectationEntry{
				AllowedDigests: []DigestPair{{HashType: "bitmap-64bitMD5", Digest: 1}},
			})
			b, err := json.Marshal(doc)
			So(err, ShouldBeNil)
			So(string(b), ShouldNotContainSubstring, "ignore-failure")
			So(string(b), ShouldNotContainSubstring, "bugs")

			decoded := &ExpectedResults{}
			So(json.Unmarshal(b, decoded), ShouldBeNil)
			So(decoded.Expectations, ShouldResemble, doc.Expectations)
		})
	})
}
