package btree

import (
	"encoding/binary"
	"os"

	"yakv/common"
)

const (
	// HeaderPageID is the fixed location of the file header.
	HeaderPageID = 0

	// FileMagic identifies a yakv data file: ASCII "YAKV".
	FileMagic = 0x59414B56

	// FileVersion is the on-disk format version this package writes
	// and is willing to open.
	FileVersion = 1

	// NoFreePage is the free-list terminator, mirroring NoParent.
	NoFreePage = 0xFFFFFFFF

	fileHeaderOffsetMagic    = 0
	fileHeaderOffsetVersion  = 4
	fileHeaderOffsetPageSize = 6
	fileHeaderOffsetRootID   = 10
	fileHeaderOffsetFreeHead = 14
)

// FileHeader is the decoded contents of page 0.
type FileHeader struct {
	Magic     uint32
	Version   uint16
	PageSize  uint32
	RootID    uint32
	FreeHead  uint32
}

func encodeHeader(h FileHeader, pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[fileHeaderOffsetMagic:], h.Magic)
	binary.LittleEndian.PutUint16(buf[fileHeaderOffsetVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[fileHeaderOffsetPageSize:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[fileHeaderOffsetRootID:], h.RootID)
	binary.LittleEndian.PutUint32(buf[fileHeaderOffsetFreeHead:], h.FreeHead)
	return buf
}

func decodeHeader(buf []byte) FileHeader {
	return FileHeader{
		Magic:    binary.LittleEndian.Uint32(buf[fileHeaderOffsetMagic:]),
		Version:  binary.LittleEndian.Uint16(buf[fileHeaderOffsetVersion:]),
		PageSize: binary.LittleEndian.Uint32(buf[fileHeaderOffsetPageSize:]),
		RootID:   binary.LittleEndian.Uint32(buf[fileHeaderOffsetRootID:]),
		FreeHead: binary.LittleEndian.Uint32(buf[fileHeaderOffsetFreeHead:]),
	}
}

// fileIO is the raw, page-aligned file access layer: positioned reads and
// writes at id*pageSize, file growth, and a data sync that persists page
// bytes and the file size but not timestamps. The page count is not
// stored in the header; open derives it from the file size.
type fileIO struct {
	file     *os.File
	pageSize int
	numPages uint32
}

func createFileIO(path string, pageSize int) (*fileIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, &common.IoError{Kind: common.IoErrorOpen, PageID: -1, Err: err}
	}
	return &fileIO{file: f, pageSize: pageSize, numPages: 0}, nil
}

func openFileIO(path string) (*fileIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, &common.IoError{Kind: common.IoErrorOpen, PageID: -1, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &common.IoError{Kind: common.IoErrorOpen, PageID: -1, Err: err}
	}
	// Peek the header with a minimal read to learn the real page size,
	// then recompute numPages from the actual file length.
	probe := make([]byte, fileHeaderOffsetFreeHead+4)
	if _, err := f.ReadAt(probe, 0); err != nil {
		f.Close()
		return nil, &common.IoError{Kind: common.IoErrorRead, PageID: HeaderPageID, Err: err}
	}
	hdr := decodeHeader(probe)
	if hdr.Magic != FileMagic || hdr.Version != FileVersion {
		f.Close()
		return nil, common.ErrBadFormat
	}
	pageSize := int(hdr.PageSize)
	if pageSize <= 0 || info.Size()%int64(pageSize) != 0 {
		f.Close()
		return nil, common.ErrBadFormat
	}
	return &fileIO{
		file:     f,
		pageSize: pageSize,
		numPages: uint32(info.Size() / int64(pageSize)),
	}, nil
}

func (io_ *fileIO) readPage(id uint32) ([]byte, error) {
	if id >= io_.numPages {
		return nil, &common.CorruptError{PageID: id, Detail: "page id beyond end of file"}
	}
	buf := make([]byte, io_.pageSize)
	n, err := io_.file.ReadAt(buf, int64(id)*int64(io_.pageSize))
	if err != nil {
		return nil, &common.IoError{Kind: common.IoErrorRead, PageID: int64(id), Err: err}
	}
	if n != io_.pageSize {
		return nil, &common.IoError{Kind: common.IoErrorRead, PageID: int64(id), Err: os.ErrClosed}
	}
	return buf, nil
}

func (io_ *fileIO) writePage(id uint32, data []byte) error {
	_, err := io_.file.WriteAt(data, int64(id)*int64(io_.pageSize))
	if err != nil {
		return &common.IoError{Kind: common.IoErrorWrite, PageID: int64(id), Err: err}
	}
	return nil
}

// grow extends the file by one page and returns its id.
func (io_ *fileIO) grow() (uint32, error) {
	id := io_.numPages
	blank := make([]byte, io_.pageSize)
	if err := io_.writePage(id, blank); err != nil {
		return 0, &common.IoError{Kind: common.IoErrorGrow, PageID: int64(id), Err: err}
	}
	io_.numPages++
	return id, nil
}

func (io_ *fileIO) syncData() error {
	if err := syncFile(io_.file); err != nil {
		return &common.IoError{Kind: common.IoErrorSync, PageID: -1, Err: err}
	}
	return nil
}

func (io_ *fileIO) close() error {
	return io_.file.Close()
}
