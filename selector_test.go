package panefs

import (
	"context"
	"reflect"
	"testing"
)

func selectorTree() File {
	fsys := newMockFS("mock")
	for _, p := range []string{
		"/readme.md",
		"/logs/app.log",
		"/logs/app.log.gz",
		"/logs/2024/jan.log.gz",
		"/img/a.jpg",
		"/img/b.png",
		"/img/raw/c.jpg",
	} {
		fsys.put(p, p)
	}
	return mockFile(fsys, "h", "/")
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Location().Path
	}
	return out
}

func TestFindFiles(t *testing.T) {
	ctx := context.Background()
	root := selectorTree()

	tests := []struct {
		name      string
		selector  FileSelector
		recursive bool
		want      []string
	}{
		{"all top level", All(), false, []string{"/readme.md"}},
		{"glob by name", Glob("*.jpg"), true, []string{"/img/a.jpg", "/img/raw/c.jpg"}},
		{"glob alternatives", Glob("{*.jpg,*.png}"), true, []string{"/img/a.jpg", "/img/b.png", "/img/raw/c.jpg"}},
		{"glob by path", Glob("/logs/**.gz"), true, []string{"/logs/2024/jan.log.gz", "/logs/app.log.gz"}},
		{"depth", And(Glob("*.gz"), Depth(2, "/")), true, []string{"/logs/app.log.gz"}},
		{"or", Or(Glob("*.md"), Glob("*.png")), true, []string{"/img/b.png", "/readme.md"}},
		{"not", And(Not(Glob("*.gz")), Glob("/logs/**")), true, []string{"/logs/app.log"}},
		{
			"func",
			FuncSelectorFull(
				func(info *FileInfo) bool { return info.Size > 10 },
				func(info *FileInfo) bool { return info.Name != "img" },
			),
			true,
			[]string{"/logs/2024/jan.log.gz", "/logs/app.log", "/logs/app.log.gz"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := FindFiles(ctx, root, tt.selector, tt.recursive)
			if err != nil {
				t.Fatal(err)
			}
			if got := paths(files); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindFiles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Walk(ctx, selectorTree(), func(File, *FileInfo) (bool, error) { return true, nil }); err == nil {
		t.Error("Walk should honour a cancelled context")
	}
}
