package panefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Copy copies src to dst. Within one realm it uses the backend's server-side
// copy when available; otherwise content is streamed through the caller.
// Directories are copied recursively.
func Copy(ctx context.Context, src, dst File) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	info, err := src.Stat(ctx)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if info.IsDir {
		return copyDir(ctx, src, dst)
	}

	if src.Location().SameRealm(dst.Location()) {
		err := src.CopyRemote(ctx, dst)
		if err == nil || !IsUnsupported(err) {
			return err
		}
	}

	return copyStream(ctx, src, dst)
}

func copyDir(ctx context.Context, src, dst File) error {
	if err := dst.Mkdir(ctx); err != nil && !IsExist(err) {
		return fmt.Errorf("create destination: %w", err)
	}

	children, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list source: %w", err)
	}

	for _, child := range children {
		target, err := Child(dst, child.Name())
		if err != nil {
			return err
		}
		if err := Copy(ctx, child, target); err != nil {
			return err
		}
	}
	return nil
}

func copyStream(ctx context.Context, src, dst File) (err error) {
	reader, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	defer reader.Close()

	writer, err := dst.Create(ctx)
	if err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("write destination: %w", cerr)
		}
	}()

	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("copy content: %w", err)
	}
	return nil
}

// Move moves src to dst, renaming when both share a realm and falling back
// to copy + delete otherwise.
func Move(ctx context.Context, src, dst File) error {
	if src.Location().SameRealm(dst.Location()) {
		err := src.Rename(ctx, dst)
		if err == nil || !IsUnsupported(err) {
			return err
		}
	}

	if err := Copy(ctx, src, dst); err != nil {
		return err
	}

	if err := deleteTree(ctx, src); err != nil {
		return fmt.Errorf("delete source after move: %w", err)
	}
	return nil
}

// deleteTree removes f, emptying directories first.
func deleteTree(ctx context.Context, f File) error {
	info, err := f.Stat(ctx)
	if err != nil {
		return err
	}
	if info.IsDir {
		children, err := f.List(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := deleteTree(ctx, child); err != nil {
				return err
			}
		}
	}
	return f.Delete(ctx)
}

// DeleteAll removes f and, for a directory, everything beneath it. A missing
// file is not an error.
func DeleteAll(ctx context.Context, f File) error {
	err := deleteTree(ctx, f)
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	return err
}

// Child returns a handle for the named entry inside dir.
func Child(dir File, name string) (File, error) {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return nil, &PathError{Op: "join", Path: name, Err: ErrInvalidName}
	}
	return NewFile(dir.FileSystem(), dir.Location().Join(name)), nil
}
