package builder_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/ossyrian/hlpak/internal/builder"
)

func TestCollect_OverlayPrecedence(t *testing.T) {
	fsys := newTree(t, map[string]string{
		"/a/x":         "1",
		"/a/maps/y":    "base",
		"/b/x":         "2",
		"/c/maps/y":    "third",
		"/c/maps/only": "new",
	})

	report, err := newBuilder(fsys).Collect("/a", []string{"/b", "/c"}, nil, "/out")
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	want := map[string]string{
		"/out/x":         "2",
		"/out/maps/y":    "third",
		"/out/maps/only": "new",
	}
	for p, content := range want {
		got, err := afero.ReadFile(fsys, p)
		if err != nil {
			t.Fatalf("ReadFile(%s) failed: %v", p, err)
		}
		if string(got) != content {
			t.Errorf("%s = %q, want %q", p, got, content)
		}
	}

	wantStaged := map[string]builder.StagedFile{
		"x":         {Path: "x", Size: 1, Origin: "/b"},
		"maps/y":    {Path: "maps/y", Size: 5, Origin: "/c"},
		"maps/only": {Path: "maps/only", Size: 3, Origin: "/c"},
	}
	if diff := cmp.Diff(wantStaged, report.Staged); diff != "" {
		t.Errorf("Staged mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_Ignore(t *testing.T) {
	fsys := newTree(t, map[string]string{
		"/game/gameinfo.txt":      "base info",
		"/game/maps/c1a0.bsp":     "map",
		"/game/maps/c1a0.bsp.bak": "backup",
		"/hd/gameinfo.txt":        "hd info",
		"/hd/cfg/config.cfg":      "hd config",
		"/hd/cfg/autoexec.cfg":    "exec",
	})

	report, err := newBuilder(fsys).Collect("/game", []string{"/hd"},
		[]string{"gameinfo.txt", "config.cfg", "*.bak", ""}, "/out")
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	wantFiles := []string{"cfg/autoexec.cfg", "maps/c1a0.bsp"}
	if diff := cmp.Diff(wantFiles, listFiles(t, fsys, "/out")); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}

	wantIgnored := []string{
		"/game/gameinfo.txt",
		"/game/maps/c1a0.bsp.bak",
		"/hd/cfg/config.cfg",
		"/hd/gameinfo.txt",
	}
	if diff := cmp.Diff(wantIgnored, report.Ignored); diff != "" {
		t.Errorf("Ignored mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_MissingOverlay(t *testing.T) {
	fsys := newTree(t, map[string]string{
		"/game/maps/c1a0.bsp": "map",
		"/hd/maps/c1a0.bsp":   "hd map",
	})

	report, err := newBuilder(fsys).Collect("/game", []string{"/missing", "/hd"}, nil, "/out")
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if diff := cmp.Diff([]string{"/missing"}, report.MissingOverlays); diff != "" {
		t.Errorf("MissingOverlays mismatch (-want +got):\n%s", diff)
	}

	got, _ := afero.ReadFile(fsys, "/out/maps/c1a0.bsp")
	if string(got) != "hd map" {
		t.Errorf("overlay after a missing overlay was not applied, got %q", got)
	}
}

func TestCollect_MissingPrimary(t *testing.T) {
	fsys := afero.NewMemMapFs()

	if _, err := newBuilder(fsys).Collect("/nope", nil, nil, "/out"); err == nil {
		t.Fatal("Collect() succeeded unexpectedly, wanted error")
	}
}

func TestCollect_EmptyDirectories(t *testing.T) {
	fsys := newTree(t, map[string]string{"/game/maps/c1a0.bsp": "map"})
	fsys.MkdirAll("/game/save", 0o755)
	fsys.MkdirAll("/game/logos/empty", 0o755)

	if _, err := newBuilder(fsys).Collect("/game", nil, nil, "/out"); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	for _, dir := range []string{"/out/save", "/out/logos/empty"} {
		if ok, _ := afero.DirExists(fsys, dir); !ok {
			t.Errorf("%s was not recreated", dir)
		}
	}
}

func TestCollect_UnreadableFileSkipped(t *testing.T) {
	src := &failingOpenFs{
		Fs:   newTree(t, map[string]string{"/game/a.txt": "a", "/game/b/c.txt": "c"}),
		fail: "/game/b/c.txt",
	}
	dst := afero.NewMemMapFs()

	report, err := builder.New(src, dst, nil).Collect("/game", nil, nil, "/out")
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if len(report.Failed) != 1 {
		t.Errorf("Failed = %v, want one failure", report.Failed)
	}
	if diff := cmp.Diff([]string{"a.txt"}, listFiles(t, dst, "/out")); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}
}

// failingOpenFs refuses to open one file
type failingOpenFs struct {
	afero.Fs
	fail string
}

func (f *failingOpenFs) Open(name string) (afero.File, error) {
	if name == f.fail {
		return nil, afero.ErrFileNotFound
	}
	return f.Fs.Open(name)
}

var errDiskRead = errors.New("disk read error")

func TestCollect_ReadFailureKeepsEarlierCopy(t *testing.T) {
	src := &failingReadFs{
		Fs: newTree(t, map[string]string{
			"/game/b/bad.txt": "base",
			"/hd/b/bad.txt":   "hd",
			"/hd/c/later.txt": "later",
		}),
		fail: "/hd/b/bad.txt",
	}
	dst := afero.NewMemMapFs()

	report, err := builder.New(src, dst, nil).Collect("/game", []string{"/hd"}, nil, "/out")
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if len(report.Failed) != 1 || !errors.Is(report.Failed[0], errDiskRead) {
		t.Errorf("Failed = %v, want one %v", report.Failed, errDiskRead)
	}

	got, _ := afero.ReadFile(dst, "/out/b/bad.txt")
	if string(got) != "base" {
		t.Errorf("/out/b/bad.txt = %q, want the earlier copy %q", got, "base")
	}
	if origin := report.Staged["b/bad.txt"].Origin; origin != "/game" {
		t.Errorf("origin of b/bad.txt = %q, want /game", origin)
	}

	if diff := cmp.Diff([]string{"b/bad.txt", "c/later.txt"}, listFiles(t, dst, "/out")); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}
}

// failingReadFs opens one file whose reads fail
type failingReadFs struct {
	afero.Fs
	fail string
}

func (f *failingReadFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil || name != f.fail {
		return file, err
	}
	return &failingReadFile{File: file}, nil
}

type failingReadFile struct {
	afero.File
}

func (f *failingReadFile) Read([]byte) (int, error) {
	return 0, errDiskRead
}
