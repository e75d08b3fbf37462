package builder_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/ossyrian/hlpak/internal/builder"
	"github.com/ossyrian/hlpak/internal/pak"
)

// numberedFiles returns count files under /out/<dir>/ named f0000, f0001, ...
func numberedFiles(dir string, count int) map[string]string {
	files := make(map[string]string, count)
	for i := 0; i < count; i++ {
		files[fmt.Sprintf("/out/%s/f%04d.wav", dir, i)] = fmt.Sprint(i)
	}
	return files
}

func TestPlanAndBuildArchives_Split(t *testing.T) {
	fsys := newTree(t, numberedFiles("sound", 4100))

	n, plan, err := newBuilder(fsys).PlanAndBuildArchives("/out", 3900, builder.DefaultArchiveName)
	if err != nil {
		t.Fatalf("PlanAndBuildArchives() failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("PlanAndBuildArchives() = %d archives, want 2", n)
	}
	if plan.FileCount() != 4100 {
		t.Errorf("FileCount() = %d, want 4100", plan.FileCount())
	}

	first := openArchive(t, fsys, "/out/pak0.pak")
	second := openArchive(t, fsys, "/out/pak1.pak")

	if len(first.Entries) != 3900 {
		t.Errorf("pak0.pak has %d entries, want 3900", len(first.Entries))
	}
	if len(second.Entries) != 200 {
		t.Errorf("pak1.pak has %d entries, want 200", len(second.Entries))
	}
	if got := first.Entries[0].Name; got != "sound/f0000.wav" {
		t.Errorf("first entry of pak0.pak = %s, want sound/f0000.wav", got)
	}
	if got := second.Entries[0].Name; got != "sound/f3900.wav" {
		t.Errorf("first entry of pak1.pak = %s, want sound/f3900.wav", got)
	}

	data, err := second.ReadEntry("sound/f4099.wav")
	if err != nil {
		t.Fatalf("ReadEntry() failed: %v", err)
	}
	if string(data) != "4099" {
		t.Errorf("ReadEntry() = %q, want %q", data, "4099")
	}

	if remaining := listFiles(t, fsys, "/out/sound"); len(remaining) != 0 {
		t.Errorf("%d packed files left in the tree", len(remaining))
	}
}

func TestPlanArchives_ChunkCount(t *testing.T) {
	tests := []struct {
		files      int
		maxFiles   int
		wantChunks int
	}{
		{files: 0, maxFiles: 5, wantChunks: 0},
		{files: 1, maxFiles: 5, wantChunks: 1},
		{files: 5, maxFiles: 5, wantChunks: 1},
		{files: 6, maxFiles: 5, wantChunks: 2},
		{files: 10, maxFiles: 1, wantChunks: 10},
		{files: 11, maxFiles: 3, wantChunks: 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d files max %d", tt.files, tt.maxFiles), func(t *testing.T) {
			fsys := newTree(t, numberedFiles("maps", tt.files))
			fsys.MkdirAll("/out", 0o755)

			plan, err := newBuilder(fsys).PlanArchives("/out", tt.maxFiles)
			if err != nil {
				t.Fatalf("PlanArchives() failed: %v", err)
			}

			if len(plan.Chunks) != tt.wantChunks {
				t.Errorf("PlanArchives() = %d chunks, want %d", len(plan.Chunks), tt.wantChunks)
			}
			total := 0
			for i, c := range plan.Chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if len(c.Files) > tt.maxFiles {
					t.Errorf("chunk %d has %d files, want at most %d", i, len(c.Files), tt.maxFiles)
				}
				total += len(c.Files)
			}
			if total != tt.files {
				t.Errorf("chunks hold %d files, want %d", total, tt.files)
			}
		})
	}
}

func TestPlanArchives_InvalidChunkSize(t *testing.T) {
	fsys := afero.NewMemMapFs()

	for _, size := range []int{0, -1} {
		if _, err := newBuilder(fsys).PlanArchives("/out", size); !errors.Is(err, builder.ErrInvalidChunkSize) {
			t.Errorf("PlanArchives(%d) error = %v, want ErrInvalidChunkSize", size, err)
		}
	}
}

func TestPlanAndBuildArchives_Filtering(t *testing.T) {
	longPath := "maps/" + strings.Repeat("a", 51) + ".bsp" // 60 characters
	fsys := newTree(t, map[string]string{
		"/out/liblist.gam":             "loose",
		"/out/v_root.mdl":              "root viewmodel",
		"/out/" + longPath:             "too long",
		"/out/maps/c1a0.bsp":           "map",
		"/out/models/v_9mmhandgun.mdl": "viewmodel",
		"/out/models/w_9mmhandgun.mdl": "worldmodel",
		"/out/sound/ü.wav":             "non-ascii",
	})

	n, plan, err := newBuilder(fsys).PlanAndBuildArchives("/out", 10, builder.DefaultArchiveName)
	if err != nil {
		t.Fatalf("PlanAndBuildArchives() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("PlanAndBuildArchives() = %d archives, want 1", n)
	}

	if diff := cmp.Diff([]string{"liblist.gam"}, plan.Loose); diff != "" {
		t.Errorf("Loose mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"models/v_9mmhandgun.mdl", "v_root.mdl"}, plan.Viewmodels); diff != "" {
		t.Errorf("Viewmodels mismatch (-want +got):\n%s", diff)
	}

	if len(plan.Excluded) != 2 {
		t.Fatalf("Excluded = %v, want 2 entries", plan.Excluded)
	}
	wantExcluded := map[string]error{
		longPath:      pak.ErrNameTooLong,
		"sound/ü.wav": pak.ErrNonASCII,
	}
	for _, e := range plan.Excluded {
		if !errors.Is(e.Err, wantExcluded[e.Path]) {
			t.Errorf("exclusion of %s = %v, want %v", e.Path, e.Err, wantExcluded[e.Path])
		}
	}

	a := openArchive(t, fsys, "/out/pak0.pak")
	if diff := cmp.Diff([]string{"maps/c1a0.bsp", "models/w_9mmhandgun.mdl"}, a.Names()); diff != "" {
		t.Errorf("archive entries mismatch (-want +got):\n%s", diff)
	}

	wantTree := []string{
		"liblist.gam",
		longPath,
		"pak0.pak",
		"sound/ü.wav",
	}
	if diff := cmp.Diff(wantTree, listFiles(t, fsys, "/out")); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanAndBuildArchives_NameFormat(t *testing.T) {
	fsys := newTree(t, numberedFiles("maps", 3))

	if _, _, err := newBuilder(fsys).PlanAndBuildArchives("/out", 2, "archive%d"); err != nil {
		t.Fatalf("PlanAndBuildArchives() failed: %v", err)
	}

	if diff := cmp.Diff([]string{"archive0", "archive1"}, listFiles(t, fsys, "/out")); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArchives_WriteFailureAborts(t *testing.T) {
	base := newTree(t, numberedFiles("maps", 3))
	fsys := afero.NewReadOnlyFs(base)
	b := newBuilder(fsys)

	plan := &builder.Plan{Chunks: []builder.Chunk{{
		Index: 0,
		Files: []builder.StagedFile{{Path: "maps/f0000.wav", Size: 1}},
	}}}

	archives, err := b.BuildArchives("/out", plan, builder.DefaultArchiveName)
	if err == nil {
		t.Fatal("BuildArchives() succeeded unexpectedly, wanted error")
	}
	if len(archives) != 0 {
		t.Errorf("BuildArchives() = %v, want no archives", archives)
	}
	if exists, _ := afero.Exists(base, "/out/maps/f0000.wav"); !exists {
		t.Error("source file removed after a failed archive write")
	}
}
