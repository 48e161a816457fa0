package archive_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/aiweather/internal/adapters/archive"
	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var cycleHour = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *archive.Store {
	t.Helper()
	s, err := archive.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	return s
}

func TestLayout(t *testing.T) {
	Convey("Given an archive store", t, func() {
		s := newStore(t)

		Convey("Then the hour directory should follow YYYY-MM/DD-HH", func() {
			So(s.Dir(cycleHour), ShouldEqual, filepath.Join(s.Root(), "2024-05", "01-10"))
		})

		Convey("Then worker file names should be filesystem safe", func() {
			So(archive.FileName("Llama 3/instruct"), ShouldEqual, "Llama_3_instruct.html")
			So(archive.FileName("A"), ShouldEqual, "A.html")
		})
	})
}

func TestIdempotentWrites(t *testing.T) {
	Convey("Given an archive store", t, func() {
		ctx := context.Background()
		s := newStore(t)

		Convey("When every write is performed twice with the same payload", func() {
			for i := 0; i < 2; i++ {
				_, err := s.SaveMetadata(ctx, cycleHour, []string{"A", "B"}, "prompt")
				So(err, ShouldBeNil)
				_, err = s.SaveRawData(ctx, cycleHour, `{"temp":1}`)
				So(err, ShouldBeNil)
				So(s.SaveWorkerResult(ctx, cycleHour, "A", "<html>A</html>"), ShouldBeNil)
			}

			Convey("Then the stored artifacts should be unchanged", func() {
				dir := s.Dir(cycleHour)
				raw, err := os.ReadFile(filepath.Join(dir, archive.RawDataFile))
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"temp":1}`)

				out, err := os.ReadFile(filepath.Join(dir, "A.html"))
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, "<html>A</html>")

				var md archive.Metadata
				data, err := os.ReadFile(filepath.Join(dir, archive.MetadataFile))
				So(err, ShouldBeNil)
				So(json.Unmarshal(data, &md), ShouldBeNil)
				So(md.Models, ShouldResemble, []string{"A", "B"})
				So(md.Prompt, ShouldEqual, "prompt")
				So(md.Timestamp, ShouldEqual, "2024-05-01T10:00:00Z")
			})
		})

		Convey("When a result is saved before any metadata", func() {
			err := s.SaveWorkerResult(ctx, cycleHour, "B", "late")

			Convey("Then it should succeed", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestFindLatestCycle(t *testing.T) {
	Convey("Given an empty archive", t, func() {
		ctx := context.Background()
		s := newStore(t)

		Convey("Then no cycle should be found", func() {
			_, err := s.FindLatestCycle(ctx)
			So(err, ShouldEqual, archive.ErrNoCycle)

			_, err = s.LoadLatest(ctx, []string{"A"})
			So(err, ShouldEqual, archive.ErrNoCycle)
		})
	})

	Convey("Given cycles across months and hours", t, func() {
		ctx := context.Background()
		s := newStore(t)
		for _, ts := range []time.Time{
			time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		} {
			_, err := s.SaveRawData(ctx, ts, `{}`)
			So(err, ShouldBeNil)
		}
		So(os.MkdirAll(filepath.Join(s.Root(), ".tmp"), 0o755), ShouldBeNil)
		So(os.MkdirAll(filepath.Join(s.Root(), "scratch"), 0o755), ShouldBeNil)

		Convey("When finding the latest cycle", func() {
			dir, err := s.FindLatestCycle(ctx)

			Convey("Then the greatest directory name should win", func() {
				So(err, ShouldBeNil)
				So(dir, ShouldEqual, s.Dir(cycleHour))
			})
		})
	})
}

func TestLoadCycle(t *testing.T) {
	Convey("Given a cycle missing one of its expected results", t, func() {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.SaveMetadata(ctx, cycleHour, []string{"A", "B"}, "p")
		So(err, ShouldBeNil)
		_, err = s.SaveRawData(ctx, cycleHour, `{"temp":21.5}`)
		So(err, ShouldBeNil)
		So(s.SaveWorkerResult(ctx, cycleHour, "A", "<html>A</html>"), ShouldBeNil)

		Convey("When loading it", func() {
			c, err := s.LoadHour(ctx, cycleHour, []string{"A", "B"})

			Convey("Then present files should be returned and absent ones reported", func() {
				So(err, ShouldBeNil)
				So(c.Timestamp.Equal(cycleHour), ShouldBeTrue)
				So(string(c.RawData), ShouldEqual, `{"temp":21.5}`)
				So(c.Results, ShouldResemble, map[string]string{"A": "<html>A</html>"})
				So(c.Missing, ShouldResemble, []string{"B"})
			})
		})

		Convey("When checking missing workers", func() {
			missing, err := s.MissingWorkers(ctx, cycleHour, []string{"A", "B"})

			Convey("Then only B should be missing", func() {
				So(err, ShouldBeNil)
				So(missing, ShouldResemble, []string{"B"})
			})
		})
	})

	Convey("Given a cycle with only results and corrupt raw data", t, func() {
		ctx := context.Background()
		s := newStore(t)
		So(s.SaveWorkerResult(ctx, cycleHour, "A", "x"), ShouldBeNil)
		_, err := s.SaveRawData(ctx, cycleHour, "{not json")
		So(err, ShouldBeNil)

		Convey("When loading the latest cycle", func() {
			c, err := s.LoadLatest(ctx, []string{"A"})

			Convey("Then it should degrade instead of failing", func() {
				So(err, ShouldBeNil)
				So(c.Metadata, ShouldBeNil)
				So(c.RawData, ShouldBeNil)
				So(c.Results["A"], ShouldEqual, "x")
				So(c.Missing, ShouldBeEmpty)
			})

			Convey("Then the timestamp should come from the directory names", func() {
				So(c.Timestamp.Equal(cycleHour), ShouldBeTrue)
			})
		})
	})

	Convey("Given an hour that was never archived", t, func() {
		s := newStore(t)

		Convey("Then loading it should report ErrNoCycle", func() {
			_, err := s.LoadHour(context.Background(), cycleHour, nil)
			So(err, ShouldEqual, archive.ErrNoCycle)
		})
	})
}

func TestExampleScenario(t *testing.T) {
	Convey("Given an empty archive and a cycle with workers A and B", t, func() {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.SaveMetadata(ctx, cycleHour, []string{"A", "B"}, "p")
		So(err, ShouldBeNil)
		_, err = s.SaveRawData(ctx, cycleHour, `{}`)
		So(err, ShouldBeNil)
		So(s.SaveWorkerResult(ctx, cycleHour, "A", "<html>A</html>"), ShouldBeNil)
		So(s.SaveWorkerResult(ctx, cycleHour, "B", "<html>error B</html>"), ShouldBeNil)

		Convey("Then the hour directory should hold exactly the four artifacts", func() {
			entries, err := os.ReadDir(s.Dir(cycleHour))
			So(err, ShouldBeNil)
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			So(names, ShouldResemble, []string{"A.html", "B.html", "metadata.json", "rawdata.json"})
		})
	})
}

func TestSaveSnapshot(t *testing.T) {
	Convey("Given an archive store", t, func() {
		ctx := context.Background()
		s := newStore(t)

		Convey("When a cycle snapshot is saved", func() {
			dir, err := s.SaveSnapshot(ctx, model.CycleSnapshot{
				Timestamp:   cycleHour,
				RawData:     `{"temp":3}`,
				WorkerNames: []string{"A", "B"},
				Prompt:      "draw",
			})

			Convey("Then metadata and raw data should both be readable", func() {
				So(err, ShouldBeNil)
				So(dir, ShouldEqual, s.Dir(cycleHour))
				c, err := s.LoadHour(ctx, cycleHour, []string{"A", "B"})
				So(err, ShouldBeNil)
				So(c.Metadata.Models, ShouldResemble, []string{"A", "B"})
				So(c.Metadata.Prompt, ShouldEqual, "draw")
				So(string(c.RawData), ShouldEqual, `{"temp":3}`)
			})
		})

		Convey("When the context is already canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.SaveSnapshot(cctx, model.CycleSnapshot{Timestamp: cycleHour, RawData: "{}"})

			Convey("Then nothing should be written", func() {
				So(err, ShouldNotBeNil)
				_, statErr := os.Stat(s.Dir(cycleHour))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}
