package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotUp             = "-- +goose Up"
	annotDown           = "-- +goose Down"
	annotStatementBegin = "-- +goose StatementBegin"
	annotStatementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every *.sql file in dir: filename shape, unique
// versions, and goose annotations (Up before Down, balanced statement blocks).
func ValidateDir(dir string) error {
	_, err := scanVersions(dir, true)
	return err
}

// scanVersions returns the sorted migration versions in dir. A missing dir
// yields no versions.
func scanVersions(dir string, checkBodies bool) ([]int64, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) && !checkBodies {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[int64]string{}
	versions := make([]int64, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		seen[version] = name
		versions = append(versions, version)

		if !checkBodies {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkAnnotations(body); err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func checkAnnotations(body []byte) error {
	var (
		sawUp, sawDown bool
		open           bool
		lineNo         int
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		lineNo++
		switch strings.TrimSpace(scanner.Text()) {
		case annotUp:
			if sawUp || sawDown {
				return fmt.Errorf("line %d: unexpected %q", lineNo, annotUp)
			}
			sawUp = true
		case annotDown:
			if !sawUp || sawDown {
				return fmt.Errorf("line %d: %q must follow a single %q", lineNo, annotDown, annotUp)
			}
			if open {
				return fmt.Errorf("line %d: %q inside an open statement block", lineNo, annotDown)
			}
			sawDown = true
		case annotStatementBegin:
			if open {
				return fmt.Errorf("line %d: nested %q", lineNo, annotStatementBegin)
			}
			open = true
		case annotStatementEnd:
			if !open {
				return fmt.Errorf("line %d: %q without begin", lineNo, annotStatementEnd)
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case !sawUp:
		return fmt.Errorf("missing %q", annotUp)
	case !sawDown:
		return fmt.Errorf("missing %q", annotDown)
	case open:
		return fmt.Errorf("unterminated %q", annotStatementBegin)
	}
	return nil
}
