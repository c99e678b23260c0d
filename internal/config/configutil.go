package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/spf13/afero"
	"github.com/titanous/json5"
)

// ReadConfig reads a json5 configuration file, `name` should come with a file extension.
// The following files are merged, where a higher number takes priority.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// os.ErrNotExist is returned if neither exists.
func ReadConfig[T any](fs afero.Fs, name string) (T, error) {
	var out T
	allNotFound := true

	dirname := filepath.Dir(name)
	ext := filepath.Ext(name)
	prefixname := strings.TrimSuffix(filepath.Base(name), ext)

	defaultFile, err := afero.ReadFile(fs, name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := filepath.Join(dirname, fmt.Sprintf("%s.local%s", prefixname, ext))
	localFile, err := afero.ReadFile(fs, localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		err = json5.Unmarshal(localFile, &override)
		if err != nil {
			return out, fmt.Errorf("%s: %w", localFilepath, err)
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Debug("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively is ReadConfig but it walks up from `start` to the filesystem root
// until it finds a configuration file matching `name`.
func ReadRecursively[T any](fs afero.Fs, start, name string) (T, error) {
	var defaultOut T

	current, err := filepath.Abs(start)
	if err != nil {
		return defaultOut, err
	}

	for {
		config, err := ReadConfig[T](fs, filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return defaultOut, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return defaultOut, os.ErrNotExist
		}
		current = parent
	}
}
