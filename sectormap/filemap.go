package sectormap

import (
	"fmt"
	"os"
)

// FileMap is a SectorMap backed by a single flat file, one fixed-size
// sector per SectorID, addressed by ReadAt/WriteAt the way the teacher's
// diskimage package addresses track/sector offsets within a .d64 image.
// It is a reference implementation only: a production deployment plugs
// in a real wear-levelling translation layer instead (spec.md §1).
type FileMap struct {
	f          *os.File
	sectorSize int
}

// OpenFileMap opens (creating if necessary) a flat sector file at path.
func OpenFileMap(path string, sectorSize int) (*FileMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileMap{f: f, sectorSize: sectorSize}, nil
}

// Close closes the underlying file.
func (m *FileMap) Close() error { return m.f.Close() }

func (m *FileMap) SectorSize() int { return m.sectorSize }

func (m *FileMap) Size() (SectorID, error) {
	st, err := m.f.Stat()
	if err != nil {
		return 0, err
	}
	return SectorID(st.Size() / int64(m.sectorSize)), nil
}

func (m *FileMap) offset(id SectorID) int64 {
	return int64(id) * int64(m.sectorSize)
}

func (m *FileMap) Read(id SectorID, buf []byte) error {
	if len(buf) != m.sectorSize {
		return fmt.Errorf("sectormap: buffer length %d != sector size %d", len(buf), m.sectorSize)
	}
	n, err := m.f.ReadAt(buf, m.offset(id))
	if err != nil {
		// A short read past EOF reads as erased flash, matching MemMap.
		for i := n; i < len(buf); i++ {
			buf[i] = 0xff
		}
		return nil
	}
	return nil
}

func (m *FileMap) Write(id SectorID, buf []byte) error {
	if len(buf) != m.sectorSize {
		return fmt.Errorf("sectormap: buffer length %d != sector size %d", len(buf), m.sectorSize)
	}
	n, err := m.f.WriteAt(buf, m.offset(id))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("sectormap: short write: %d", n)
	}
	return nil
}

func (m *FileMap) Clear() error {
	if err := m.f.Truncate(0); err != nil {
		return err
	}
	_, err := m.f.Seek(0, 0)
	return err
}

func (m *FileMap) Find(id SectorID) (bool, error) {
	size, err := m.Size()
	if err != nil {
		return false, err
	}
	return id < size, nil
}
