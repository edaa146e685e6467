package shm

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-bridge/errors"
)

const devShmDir = "/dev/shm"

// Object is a shared-memory object: a named file on /dev/shm that other
// processes can open, or an anonymous memfd for single-process use.
type Object struct {
	file  *os.File
	name  string
	size  int64
	owner bool
	anon  bool
}

// Create makes a new named object of the given size, failing if the name
// already exists. The creator owns the name and should Unlink it when done.
func Create(name string, size int64) (*Object, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.InvalidInput(errors.PhaseMap, "object size must be positive")
	}
	if !canCreateOnDevShm(uint64(size)) {
		return nil, errors.New(errors.PhaseMap, errors.KindAllocation).
			Region(name).
			Detail("no space on %s for %d bytes", devShmDir, size).
			Build()
	}

	f, err := os.OpenFile(filepath.Join(devShmDir, name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.New(errors.PhaseMap, errors.KindAllocation).
			Region(name).Cause(err).Detail("create shared object").Build()
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.New(errors.PhaseMap, errors.KindAllocation).
			Region(name).Cause(err).Detail("size shared object to %d bytes", size).Build()
	}

	Logger().Debug("created shared object",
		zap.String("name", name), zap.Int64("size", size))
	return &Object{file: f, name: name, size: size, owner: true}, nil
}

// CreateAnonymous makes a memfd-backed object. It has no /dev/shm name and
// cannot be opened by other processes; Unlink is a no-op.
func CreateAnonymous(name string, size int64) (*Object, error) {
	if size <= 0 {
		return nil, errors.InvalidInput(errors.PhaseMap, "object size must be positive")
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.New(errors.PhaseMap, errors.KindAllocation).
			Region(name).Cause(err).Detail("memfd_create").Build()
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, errors.New(errors.PhaseMap, errors.KindAllocation).
			Region(name).Cause(err).Detail("size memfd to %d bytes", size).Build()
	}
	return &Object{file: os.NewFile(uintptr(fd), name), name: name, size: size, owner: true, anon: true}, nil
}

// Open attaches to an existing named object created by another process.
func Open(name string) (*Object, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(devShmDir, name), os.O_RDWR, 0)
	if err != nil {
		return nil, errors.MappingFailed(name, "open shared object", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.MappingFailed(name, "stat shared object", err)
	}
	return &Object{file: f, name: name, size: fi.Size()}, nil
}

// Name returns the object name.
func (o *Object) Name() string { return o.name }

// Size returns the object size in bytes.
func (o *Object) Size() int64 { return o.size }

// Anonymous reports whether the object is a memfd with no /dev/shm name.
func (o *Object) Anonymous() bool { return o.anon }

// Close releases the file descriptor. Mappings already taken stay valid.
func (o *Object) Close() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}

// Unlink removes the object's name so no further Opens can reach it.
// Existing mappings and descriptors keep working until released.
func (o *Object) Unlink() error {
	if o.anon {
		return nil
	}
	if err := os.Remove(filepath.Join(devShmDir, o.name)); err != nil {
		return errors.MappingFailed(o.name, "unlink shared object", err)
	}
	Logger().Debug("unlinked shared object", zap.String("name", o.name))
	return nil
}

func checkName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return errors.InvalidInput(errors.PhaseMap, "empty or reserved object name")
	case strings.ContainsRune(name, '/'):
		return errors.InvalidInput(errors.PhaseMap, "object name must not contain '/'")
	case len(name) > 255:
		return errors.InvalidInput(errors.PhaseMap, "object name longer than 255 bytes")
	}
	return nil
}

// canCreateOnDevShm reports whether /dev/shm has room for size more bytes.
// Errors reading the filesystem stats do not block creation.
func canCreateOnDevShm(size uint64) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(devShmDir, &st); err != nil {
		return true
	}
	return uint64(st.Bavail)*uint64(st.Bsize) >= size
}
