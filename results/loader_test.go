// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package results

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"

	"rebaseline/model"
)

// writeTreeFile writes body at <root>/<relpath>, creating directories.
func writeTreeFile(root, relpath, body string) {
	fp := filepath.Join(root, filepath.FromSlash(relpath))
	So(os.MkdirAll(filepath.Dir(fp), 0755), ShouldBeNil)
	So(ioutil.WriteFile(fp, []byte(body), 0644), ShouldBeNil)
}

const actualsDoc = `{
	"actual-results": {
		"failed": {
			"bigmatrix_8888.png": ["bitmap-64bitMD5", 111]
		}
	}
}`

const expectedDoc = `{
	"expected-results": {
		"bigmatrix_8888.png": {
			"allowed-digests": [["bitmap-64bitMD5", 111]]
		}
	}
}`

func TestIgnoreBuilder(t *testing.T) {
	t.Parallel()

	Convey("IgnoreBuilder", t, func() {
		for _, builder := range []string{
			"Test-Ubuntu12-ShuttleA-GTX660-x86-Release-Trybot",
			"Test-Ubuntu12-ShuttleA-GTX660-x86-Release-Valgrind",
			"Test-Ubuntu13-ShuttleA-HD2000-x86_64-Debug-ASAN",
			"Test-Ubuntu13-ShuttleA-HD2000-x86_64-Debug-TSAN",
		} {
			So(IgnoreBuilder(builder), ShouldBeTrue)
		}
		So(IgnoreBuilder("Test-Mac10.6-MacMini4.1-GeForce320M-x86-Debug"), ShouldBeFalse)
	})
}

func TestReadTrees(t *testing.T) {
	t.Parallel()

	Convey("With a temp tree", t, func() {
		ctx := context.Background()
		root, err := ioutil.TempDir("", "loader_test")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		Convey("Loads one document per builder directory", func() {
			writeTreeFile(root, "B1/actual-results.json", actualsDoc)
			writeTreeFile(root, "B2/actual-results.json", actualsDoc)
			writeTreeFile(root, "B2/notes.txt", "not a result file")

			trees, err := ReadActualTrees(ctx, root)
			So(err, ShouldBeNil)
			So(trees, ShouldHaveLength, 2)
			So(trees["B1"], ShouldNotBeNil)
			So(trees["B2"], ShouldNotBeNil)
		})

		Convey("Never loads an ignored builder", func() {
			writeTreeFile(root, "B1-Trybot/actual-results.json", actualsDoc)
			writeTreeFile(root, "B2-Valgrind/actual-results.json", actualsDoc)
			writeTreeFile(root, "Builder-ASAN/actual-results.json", actualsDoc)
			writeTreeFile(root, "Builder-TSAN/actual-results.json", actualsDoc)
			writeTreeFile(root, "B3/actual-results.json", actualsDoc)

			trees, err := ReadActualTrees(ctx, root)
			So(err, ShouldBeNil)
			So(trees, ShouldHaveLength, 1)
			So(trees["B3"], ShouldNotBeNil)
		})

		Convey("Last matching file in a directory wins", func() {
			writeTreeFile(root, "B1/a.json", `{"actual-results": {"failed": {}}}`)
			writeTreeFile(root, "B1/b.json", actualsDoc)

			trees, err := ReadActualTrees(ctx, root)
			So(err, ShouldBeNil)
			So(trees["B1"].ByType[model.ResultFailed], ShouldHaveLength, 1)
		})

		Convey("Missing root is a NotFoundError", func() {
			_, err := ReadActualTrees(ctx, filepath.Join(root, "nonexistent"))
			So(err, ShouldNotBeNil)
			_, ok := err.(*NotFoundError)
			So(ok, ShouldBeTrue)
		})

		Convey("A file as root is a NotFoundError", func() {
			fp := filepath.Join(root, "file.json")
			So(ioutil.WriteFile(fp, []byte(actualsDoc), 0644), ShouldBeNil)
			_, err := ReadActualTrees(ctx, fp)
			So(err, ShouldNotBeNil)
			_, ok := err.(*NotFoundError)
			So(ok, ShouldBeTrue)
		})

		Convey("A corrupt document names its file", func() {
			writeTreeFile(root, "B1/actual-results.json", "{")
			_, err := ReadActualTrees(ctx, root)
			So(err, ShouldErrLike, "B1")
		})

		Convey("Expected trees load the baseline documents", func() {
			writeTreeFile(root, "B1/expected-results.json", expectedDoc)
			trees, err := ReadExpectedTrees(ctx, root)
			So(err, ShouldBeNil)
			entry, status := trees["B1"].Lookup("bigmatrix_8888.png")
			So(status, ShouldEqual, model.ExpectationFound)
			So(entry.AllowedDigests[0].Digest, ShouldEqual, model.Digest(111))
		})
	})
}
