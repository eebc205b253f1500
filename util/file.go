package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// WriteBytesWithRestrictedPermission atomically replaces file with bs after
// restricting access to its parent directory.
func WriteBytesWithRestrictedPermission(ctx context.Context, file string, bs []byte) error {
	dir, name, err := prepareFileDir(file)
	if err != nil {
		return fmt.Errorf("prepare file dir: %w", err)
	}

	if err := EnforcePermission(file); err != nil {
		return fmt.Errorf("enforce permission: %w", err)
	}

	return writeBytes(ctx, file, dir, name, bs)
}

// WriteJsonWithRestrictedPermission writes obj as indented JSON, see
// WriteBytesWithRestrictedPermission.
func WriteJsonWithRestrictedPermission(ctx context.Context, file string, obj any) error {
	bs, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return WriteBytesWithRestrictedPermission(ctx, file, bs)
}

// WriteJson writes obj as indented JSON, creating parent directories if required.
func WriteJson(ctx context.Context, file string, obj any) error {
	dir, name, err := prepareFileDir(file)
	if err != nil {
		return fmt.Errorf("prepare file dir: %w", err)
	}

	bs, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	return writeBytes(ctx, file, dir, name, bs)
}

// ReadJson decodes the JSON file into res and returns it.
func ReadJson(file string, res any) (any, error) {
	bs, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(bs, res); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	return res, nil
}

// writeBytes writes into a temp file next to the target and renames it into
// place, so readers never observe a partial file.
func writeBytes(ctx context.Context, file, dir, name string, bs []byte) error {
	if ctx.Err() != nil {
		return fmt.Errorf("write start: %w", ctx.Err())
	}

	tempFile, err := os.CreateTemp(dir, ".*"+name)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() {
		if _, err := os.Stat(tempFileName); err == nil {
			_ = os.Remove(tempFileName)
		}
	}()

	if err := tempFile.Chmod(0600); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("set temp file permissions: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := tempFile.SetDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			log.Warnf("failed to set deadline: %v", err)
		}
	}

	if _, err := tempFile.Write(bs); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tempFileName, err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("after temp file: %w", ctx.Err())
	}

	if err := os.Rename(tempFileName, file); err != nil {
		return fmt.Errorf("move %s to %s: %w", tempFileName, file, err)
	}

	return nil
}

// prepareFileDir creates the parent directory of file with 0750 permissions
// and returns it together with the file name.
func prepareFileDir(file string) (string, string, error) {
	dir, name := filepath.Split(file)
	if dir == "" {
		return filepath.Dir(file), name, nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", err
	}

	return dir, name, nil
}

// FileExists returns true if specified file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
