// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Stage is a dated staging directory: `<data_dir>/<source_tag>/<YYYY-MM-DD>/`.
// Re-running a source on the same day reuses the directory; the latest dated
// directory is the default input for ingestion.
type Stage struct {
	Dir  string
	Date string
}

var stageDateRx = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NewStage creates (or reuses) today's staging directory for a source.
func NewStage(dataDir, sourceTag string, now time.Time) (Stage, error) {
	date := now.Format("2006-01-02")
	dir := filepath.Join(dataDir, sourceTag, date)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return Stage{}, err
	}
	return Stage{Dir: dir, Date: date}, nil
}

// LatestStage finds the most recent dated staging directory for a source.
func LatestStage(dataDir, sourceTag string) (Stage, error) {
	parent := filepath.Join(dataDir, sourceTag)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return Stage{}, err
	}
	var dates []string
	for _, entry := range entries {
		if entry.IsDir() && stageDateRx.MatchString(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}
	if len(dates) == 0 {
		return Stage{}, fmt.Errorf("no staged downloads for source %s under %s", sourceTag, parent)
	}
	sort.Strings(dates)
	date := dates[len(dates)-1]
	return Stage{Dir: filepath.Join(parent, date), Date: date}, nil
}

// Path returns the full path of a file inside the staging directory.
func (s Stage) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Has reports whether the named file already exists in the staging directory
// (and passes the integrity check), allowing same-day reruns to skip the
// download.
func (s Stage) Has(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Size() > 0 && CheckIntegrity(s.Path(name)) == nil
}

// Unzip decompresses an archive into the staging directory and returns the
// extracted member names. Member paths are flattened; a ZIP that tries to
// escape the staging directory is rejected.
func (s Stage) Unzip(zipName string) ([]string, error) {
	reader, err := zip.OpenReader(s.Path(zipName))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var names []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(member.Name)
		if name == "." || name == ".." {
			return nil, fmt.Errorf("refusing to extract suspicious member %q from %s", member.Name, zipName)
		}
		err := extractMember(member, s.Path(name))
		if err != nil {
			return nil, fmt.Errorf("while extracting %s from %s: %w", member.Name, zipName, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func extractMember(member *zip.File, destPath string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src) //nolint:gosec // bulk dumps are legitimately huge
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return err
}

// FirstMatching returns the first staged file whose name matches the glob
// pattern. The first matching ZIP member is the payload by convention.
func (s Stage) FirstMatching(pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no staged file matching %q in %s", pattern, s.Dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
