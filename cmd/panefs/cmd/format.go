package cmd

import (
	"fmt"
	"time"

	"github.com/gobeaver/panefs"
)

const timeLayout = "2006-01-02 15:04"

// longLine formats info the way "ls -l" does. Attributes the backend does
// not report are shown as "?".
func longLine(info *panefs.FileInfo, name string) string {
	mode := "?"
	if info.Has(panefs.AttrMode) {
		mode = info.Mode.String()
		if info.IsDir {
			mode = "d" + mode[1:]
		}
	} else if info.IsDir {
		mode = "d?"
	}

	owner, group := "?", "?"
	if info.Has(panefs.AttrOwner) {
		owner = info.Owner
	}
	if info.Has(panefs.AttrGroup) {
		group = info.Group
	}

	size := "?"
	if info.Has(panefs.AttrSize) && !info.IsDir {
		size = fmt.Sprint(info.Size)
	} else if info.IsDir {
		size = "-"
	}

	modTime := "?"
	if info.Has(panefs.AttrModTime) {
		modTime = info.ModTime.Local().Format(timeLayout)
	}

	if info.IsDir {
		name += "/"
	}
	return fmt.Sprintf("%-11s %-8s %-8s %10s %16s %s", mode, owner, group, size, modTime, name)
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.RFC3339)
}
