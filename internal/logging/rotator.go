package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// rotatedStamp orders backups by name as well as by time.
const rotatedStamp = "20060102T150405.000"

// FileRotator is an io.Writer that rotates its file by size and by day.
//
// Backups live next to the log file and carry the component that wrote
// them: imecore.log rotated by imecore-ibus becomes
// imecore-imecore-ibus-<stamp>.log, gzipped when Compress is set. Each
// component prunes only its own backups, so the IBus engine and imectl
// can share one log path.
type FileRotator struct {
	config *Config
	prefix string

	mu      sync.Mutex
	file    *os.File
	size    int64
	opened  time.Time
	pending sync.WaitGroup
	now     func() time.Time
}

// NewFileRotator opens cfg.FilePath for appending, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		config: cfg,
		prefix: backupPrefix(cfg),
		now:    time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// backupPrefix is the path prefix shared by every backup of one component.
func backupPrefix(cfg *Config) string {
	base := filepath.Base(cfg.FilePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if c := sanitizeComponent(cfg.Component); c != "" {
		name += "-" + c
	}
	return filepath.Join(filepath.Dir(cfg.FilePath), name+"-")
}

func sanitizeComponent(c string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '*', '?', '[', ']', ' ':
			return '_'
		}
		return r
	}, c)
}

func (r *FileRotator) open() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	r.opened = r.now()
	return nil
}

// Write implements io.Writer. A record never straddles two files.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size > 0 && r.due(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) due(next int64) bool {
	if limit := r.config.MaxSize << 20; limit > 0 && r.size+next > limit {
		return true
	}
	y1, m1, d1 := r.opened.Date()
	y2, m2, d2 := r.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Rotate moves the current file aside and starts a new one.
func (r *FileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	ext := filepath.Ext(r.config.FilePath)
	backup := r.prefix + r.now().Format(rotatedStamp) + ext
	if err := os.Rename(r.config.FilePath, backup); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("rename log file: %w", err)
		}
		backup = ""
	}
	if err := r.open(); err != nil {
		return err
	}

	// Compress before pruning so a backup is never counted twice.
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if backup != "" && r.config.Compress {
			compressFile(backup)
		}
		r.prune()
	}()
	return nil
}

// compressFile replaces path with path.gz. On failure the plain file stays.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	_, err = io.Copy(gz, input)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := output.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

func hasStamp(s string) bool {
	if len(s) < len(rotatedStamp) {
		return false
	}
	_, err := time.Parse(rotatedStamp, s[:len(rotatedStamp)])
	return err == nil
}

type backupFile struct {
	path    string
	modTime time.Time
}

// backups returns the files matching prefix, oldest first. With stamped
// set the prefix must be followed directly by a rotation stamp, which keeps
// imecore-imecore-* from claiming imecore-imecore-ibus-* files.
func backups(prefix, ext string, stamped bool) ([]backupFile, error) {
	matches, err := filepath.Glob(prefix + "*" + ext + "*")
	if err != nil {
		return nil, err
	}
	files := make([]backupFile, 0, len(matches))
	for _, m := range matches {
		if stamped && !hasStamp(strings.TrimPrefix(m, prefix)) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, backupFile{path: m, modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

// prune applies MaxBackups and MaxAge to this component's backups.
func (r *FileRotator) prune() {
	files, err := backups(r.prefix, filepath.Ext(r.config.FilePath), true)
	if err != nil {
		return
	}
	keep := files[:0]
	if r.config.MaxAge > 0 {
		cutoff := r.now().AddDate(0, 0, -r.config.MaxAge)
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				os.Remove(f.path)
				continue
			}
			keep = append(keep, f)
		}
		files = keep
	}
	if n := r.config.MaxBackups; n > 0 && len(files) > n {
		for _, f := range files[:len(files)-n] {
			os.Remove(f.path)
		}
	}
}

// Close waits for pending compression and closes the file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending.Wait()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync flushes the file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// LogFiles lists the log file of cfg followed by every backup, whichever
// component wrote it, oldest first. The current file is included only when
// it exists. Nothing is opened.
func LogFiles(cfg *Config) ([]string, error) {
	var files []string
	if _, err := os.Stat(cfg.FilePath); err == nil {
		files = append(files, cfg.FilePath)
	}
	base := filepath.Base(cfg.FilePath)
	ext := filepath.Ext(base)
	prefix := filepath.Join(filepath.Dir(cfg.FilePath), strings.TrimSuffix(base, ext)+"-")
	found, err := backups(prefix, ext, false)
	if err != nil {
		return files, err
	}
	for _, f := range found {
		files = append(files, f.path)
	}
	return files, nil
}
