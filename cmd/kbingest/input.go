package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/kbingest/ingestion"
)

// maxLineSize bounds one manifest line; bodies are usually inline.
const maxLineSize = 16 << 20

// lines returns an iterator over the lines of r.
func lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	for line, err := range lines(r) {
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, nil
}

// manifestEntry is one JSONL manifest line. When Path is set the body is
// read from that file, relative to the manifest's directory.
type manifestEntry struct {
	ingestion.IngestRequest
	Path string `json:"path,omitempty"`
}

// readManifest parses a JSONL manifest.
func readManifest(path string) ([]ingestion.IngestRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var reqs []ingestion.IngestRequest
	n := 0
	for line, err := range lines(f) {
		if err != nil {
			return nil, err
		}
		n++
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry manifestEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		if entry.Path != "" {
			p := entry.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			body, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, n, err)
			}
			entry.Body = string(body)
		}
		reqs = append(reqs, entry.IngestRequest)
	}
	return reqs, nil
}

// readBody reads a document from path, or stdin when path is "-".
func readBody(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// snippet shortens s to at most n runes on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
