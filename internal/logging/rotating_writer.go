// Package logging provides the file sink for the blueprint service's
// process log. Generation traffic is long-lived and chatty, so the sink
// rotates by UTC day and by size instead of growing one file forever.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the size ceiling for one log segment before a
// same-day rollover.
const DefaultMaxBytes = int64(300 * 1024 * 1024)

// RotatingFile is an io.WriteCloser that fans a logical log path out to
// dated segment files.
//
// Segments are named <base>-YYYY-MM-DD.log, with a 1-based suffix
// (<base>-YYYY-MM-DD-2.log, ...) when a day's segment outgrows maxBytes.
// The logical path itself is kept as a symlink to the live segment so
// `tail -F logs/blueprintd.log` follows rotation.
type RotatingFile struct {
	basePath string
	maxBytes int64

	mu      sync.Mutex
	day     string // YYYY-MM-DD of the open segment
	segment int    // 1-based within the day
	file    *os.File
	written int64
}

// OpenRotatingFile opens the segment for today under basePath. A basePath
// of "-" disables file output and returns a discarding writer.
func OpenRotatingFile(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	rf := &RotatingFile{basePath: basePath, maxBytes: maxBytes}
	if err := rf.roll(0); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if err := rf.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := rf.file.Write(p)
	rf.written += int64(n)
	return n, err
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	return rf.file.Close()
}

// roll switches segments when the UTC day changed or the pending write
// would push the open segment past maxBytes.
func (rf *RotatingFile) roll(incoming int64) error {
	today := time.Now().UTC().Format("2006-01-02")
	switch {
	case rf.file == nil || rf.day != today:
		rf.day = today
		rf.segment = 1
	case rf.written+incoming > rf.maxBytes:
		rf.segment++
	default:
		return nil
	}
	return rf.openSegment()
}

func (rf *RotatingFile) openSegment() error {
	if rf.file != nil {
		_ = rf.file.Close()
	}
	dir, name := filepath.Split(rf.basePath)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	segment := fmt.Sprintf("%s-%s%s", base, rf.day, ext)
	if rf.segment > 1 {
		segment = fmt.Sprintf("%s-%s-%d%s", base, rf.day, rf.segment, ext)
	}
	path := filepath.Join(dir, segment)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log segment: %w", err)
	}
	rf.file = f
	rf.written = 0
	if st, err := f.Stat(); err == nil {
		rf.written = st.Size()
	}
	rf.pointTo(path)
	return nil
}

// pointTo repoints the logical basePath at the live segment. Symlink
// first, hard link on filesystems without symlinks, and as a last resort
// a plain file naming the segment.
func (rf *RotatingFile) pointTo(target string) {
	base := strings.TrimSpace(rf.basePath)
	if base == "" || base == "-" {
		return
	}
	if info, err := os.Lstat(base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, derr := os.Readlink(base); derr == nil && dest == target {
				return
			}
		}
		_ = os.Remove(base)
	}
	if err := os.Symlink(target, base); err == nil {
		return
	}
	if err := os.Link(target, base); err == nil {
		return
	}
	if f, err := os.OpenFile(base, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		defer f.Close()
		_, _ = fmt.Fprintf(f, "current log file: %s\n", target)
	}
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
