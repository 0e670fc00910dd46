package wampLogSink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/klauspost/compress/zstd"
)

const ARCHIVE_SUFFIX = ".zst"

var logFilePattern = regexp.MustCompile(`^\d{8}_\d{6}\.json$`)

// List returns the log documents of logDir, oldest first, archives included
func List(logDir string) ([]string, error) {
	entries, e := os.ReadDir(logDir)
	if e != nil {
		return nil, e
	}
	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if logFilePattern.MatchString(name) || (len(name) > len(ARCHIVE_SUFFIX) &&
			logFilePattern.MatchString(name[:len(name)-len(ARCHIVE_SUFFIX)])) {
			result = append(result, filepath.Join(logDir, name))
		}
	}
	sort.Strings(result)
	return result, nil
}

// Archive compresses every plain log document of logDir except keep.
// It returns the paths of the created archives.
func Archive(logDir string, keep string) ([]string, error) {
	paths, e := List(logDir)
	if e != nil {
		return nil, e
	}
	var archived []string
	for _, path := range paths {
		if filepath.Ext(path) != ".json" || filepath.Clean(path) == filepath.Clean(keep) {
			continue
		}
		target := path + ARCHIVE_SUFFIX
		e = compressFile(path, target)
		if e != nil {
			return archived, fmt.Errorf("archive %s: %w", path, e)
		}
		e = os.Remove(path)
		if e != nil {
			return archived, e
		}
		archived = append(archived, target)
	}
	return archived, nil
}

func compressFile(source string, target string) error {
	input, e := os.Open(source)
	if e != nil {
		return e
	}
	defer input.Close()

	output, e := os.Create(target)
	if e != nil {
		return e
	}
	encoder, e := zstd.NewWriter(output)
	if e != nil {
		output.Close()
		return e
	}
	_, e = io.Copy(encoder, input)
	closeError := encoder.Close()
	if e == nil {
		e = closeError
	}
	closeError = output.Close()
	if e == nil {
		e = closeError
	}
	if e != nil {
		os.Remove(target)
	}
	return e
}

func decompress(data []byte) ([]byte, error) {
	decoder, e := zstd.NewReader(nil)
	if e != nil {
		return nil, e
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
