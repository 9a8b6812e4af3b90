// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package diffstore

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func strPtr(s string) *string { return &s }

func TestDisk(t *testing.T) {
	t.Parallel()

	Convey("With a temp work dir", t, func() {
		ctx := context.Background()
		workDir, err := ioutil.TempDir("", "diffstore_test")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(workDir) })

		store, err := New(workDir)
		So(err, ShouldBeNil)

		Convey("Identical references yield an identical handle", func() {
			url := strPtr("md5/testA/111.png")
			rec, err := store.Get(ctx, url, url)
			So(err, ShouldBeNil)
			So(rec.Identical, ShouldBeTrue)
			So(rec.DiffURL, ShouldBeEmpty)
		})

		Convey("Differing references yield diff image locations", func() {
			rec, err := store.Get(ctx, strPtr("md5/testA/111.png"), strPtr("md5/testA/222.png"))
			So(err, ShouldBeNil)
			So(rec.Identical, ShouldBeFalse)
			So(rec.DiffURL, ShouldContainSubstring, "testA_111-vs-222.png")
			So(rec.WhiteDiffURL, ShouldContainSubstring, "whitediffs")
		})

		Convey("A nil side still yields a handle", func() {
			rec, err := store.Get(ctx, nil, strPtr("md5/testA/111.png"))
			So(err, ShouldBeNil)
			So(rec.Identical, ShouldBeFalse)
			So(rec.DiffURL, ShouldBeEmpty)

			rec, err = store.Get(ctx, nil, nil)
			So(err, ShouldBeNil)
			So(rec.Identical, ShouldBeFalse)
		})

		Convey("A malformed reference is an error", func() {
			_, err := store.Get(ctx, strPtr("not a url"), strPtr("md5/testA/111.png"))
			So(err, ShouldNotBeNil)
		})

		Convey("Handles persist across store instances", func() {
			rec, err := store.Get(ctx, strPtr("md5/testA/111.png"), strPtr("md5/testA/222.png"))
			So(err, ShouldBeNil)

			fresh, err := New(workDir)
			So(err, ShouldBeNil)
			again, err := fresh.Get(ctx, strPtr("md5/testA/111.png"), strPtr("md5/testA/222.png"))
			So(err, ShouldBeNil)
			So(again, ShouldResemble, rec)
		})
	})
}
