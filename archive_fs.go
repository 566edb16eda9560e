package medgfx

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

type archiveFS struct {
	a *Archive
}

// Open implements fs.FS, allowing the archive to be used as a read-only filesystem.
func (afs *archiveFS) Open(name string) (fs.File, error) {
	entry, err := afs.getEntry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if entry.isDir {
		return &fsDir{entry: entry, a: afs.a}, nil
	}

	fsFile, err := newFSFile(entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	return fsFile, nil
}

// Stat implements fs.StatFS.
func (afs *archiveFS) Stat(name string) (fs.FileInfo, error) {
	entry, err := afs.getEntry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfoAdapter{entry}, nil
}

// ReadDir implements fs.ReadDirFS.
func (afs *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := afs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// getEntry resolves a name to its archive entry. It handles the root
// directory, explicit entries, and directories that exist only as path
// prefixes of deeper entries.
func (afs *archiveFS) getEntry(name string) (*Entry, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	if name == "." {
		return &Entry{name: ".", isDir: true}, nil
	}

	if e, err := afs.a.Entry(name); err == nil {
		return e, nil
	}

	if afs.hasImplicitDir(name) {
		return &Entry{name: name, isDir: true}, nil
	}

	return nil, fs.ErrNotExist
}

func (afs *archiveFS) hasImplicitDir(name string) bool {
	prefix := name + "/"
	for _, e := range afs.a.entries {
		if strings.HasPrefix(e.name, prefix) {
			return true
		}
	}
	return false
}

// fsFile wraps a regular entry to satisfy fs.File. The payload is
// extracted once when the file is opened.
type fsFile struct {
	entry *Entry
	r     *bytes.Reader
}

func newFSFile(e *Entry) (*fsFile, error) {
	content, err := e.Extract()
	if err != nil {
		return nil, err
	}
	return &fsFile{entry: e, r: bytes.NewReader(content)}, nil
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfoAdapter{f.entry}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.r.Read(b) }
func (f *fsFile) Close() error               { return nil }

// fsDir wraps a directory entry to satisfy fs.ReadDirFile. Successive
// ReadDir calls on one handle page through the child list.
type fsDir struct {
	entry    *Entry
	a        *Archive
	children []fs.DirEntry
	listed   bool
	offset   int
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return fileInfoAdapter{d.entry}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.entry.name, Err: fs.ErrInvalid}
}

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.children = d.list()
		d.listed = true
	}

	remain := len(d.children) - d.offset
	if n > 0 && remain > n {
		remain = n
	}
	if remain == 0 {
		if n <= 0 {
			return nil, nil
		}
		return nil, io.EOF
	}

	list := d.children[d.offset : d.offset+remain]
	d.offset += remain
	return list, nil
}

// list collects the directory's immediate children from the entry list.
func (d *fsDir) list() []fs.DirEntry {
	dirPath := d.entry.name
	if dirPath == "." {
		dirPath = ""
	} else if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for _, e := range d.a.entries {
		if !strings.HasPrefix(e.name, dirPath) {
			continue
		}

		rel := strings.TrimPrefix(e.name, dirPath)
		if rel == "" {
			continue
		}

		parts := strings.SplitN(rel, "/", 2)
		childName := parts[0]

		if seen[childName] {
			continue
		}
		seen[childName] = true

		// A child first seen as a path prefix of a deeper entry gets the
		// explicit directory entry's info when the archive has one, and
		// synthesized dir info otherwise, so it agrees with what Stat
		// reports for it.
		info := fs.FileInfo(fileInfoAdapter{e})
		if len(parts) > 1 {
			if child, err := d.a.Entry(dirPath + childName); err == nil {
				info = fileInfoAdapter{child}
			} else {
				info = fileInfoAdapter{&Entry{name: childName, isDir: true}}
			}
		}

		entries = append(entries, fsDirEntryAdapter{
			name:  childName,
			isDir: len(parts) > 1 || e.isDir,
			info:  info,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

type fileInfoAdapter struct{ e *Entry }

func (i fileInfoAdapter) Name() string { return path.Base(i.e.name) }
func (i fileInfoAdapter) Size() int64  { return i.e.uncompressedSize }
func (i fileInfoAdapter) Mode() fs.FileMode {
	if i.e.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (i fileInfoAdapter) ModTime() time.Time { return i.e.modTime }
func (i fileInfoAdapter) IsDir() bool        { return i.e.isDir }
func (i fileInfoAdapter) Sys() interface{}   { return nil }

type fsDirEntryAdapter struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntryAdapter) Name() string               { return e.name }
func (e fsDirEntryAdapter) IsDir() bool                { return e.isDir }
func (e fsDirEntryAdapter) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e fsDirEntryAdapter) Info() (fs.FileInfo, error) { return e.info, nil }
