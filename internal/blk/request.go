package blk

// Request is one queued unit of I/O. The payload is an ordered list of
// segments; each segment is transferred as one chunk starting at the
// request's current sector position.
//
// The drain loop only reads the cursor (Pos, CurSectors, Buffer). The host
// moves it with Advance and ends the request with Finish.
type Request struct {
	kind   Kind
	dir    Dir
	start  uint64
	sector uint64
	segs   [][]byte
	seg    int
	tag    uint16
	done   bool
	err    error
}

// NewRequest creates a request of the given kind and direction
func NewRequest(kind Kind, dir Dir, sector uint64, segs ...[]byte) *Request {
	return &Request{
		kind:   kind,
		dir:    dir,
		start:  sector,
		sector: sector,
		segs:   segs,
	}
}

// NewRead creates a filesystem read request
func NewRead(sector uint64, segs ...[]byte) *Request {
	return NewRequest(KindFS, Read, sector, segs...)
}

// NewWrite creates a filesystem write request
func NewWrite(sector uint64, segs ...[]byte) *Request {
	return NewRequest(KindFS, Write, sector, segs...)
}

// Kind returns the request class
func (r *Request) Kind() Kind { return r.kind }

// Dir returns the data direction
func (r *Request) Dir() Dir { return r.dir }

// IsFS reports whether the request is a filesystem read/write
func (r *Request) IsFS() bool { return r.kind == KindFS }

// Start returns the sector the request was submitted at
func (r *Request) Start() uint64 { return r.start }

// Pos returns the sector of the current chunk
func (r *Request) Pos() uint64 { return r.sector }

// Tag returns the host-assigned tag
func (r *Request) Tag() uint16 { return r.tag }

// SetTag is used by the host when the request is queued
func (r *Request) SetTag(tag uint16) { r.tag = tag }

// Buffer returns the current chunk's buffer, or nil once all chunks are consumed
func (r *Request) Buffer() []byte {
	if r.seg >= len(r.segs) {
		return nil
	}
	return r.segs[r.seg]
}

// CurSectors returns the sector count of the current chunk. A trailing
// partial sector counts as a whole one so range checks cover every byte.
func (r *Request) CurSectors(sectorSize uint32) uint32 {
	buf := r.Buffer()
	if buf == nil || sectorSize == 0 {
		return 0
	}
	n := uint64(len(buf))
	return uint32((n + uint64(sectorSize) - 1) / uint64(sectorSize))
}

// Segments returns the total number of chunks
func (r *Request) Segments() int { return len(r.segs) }

// Remaining returns the number of chunks not yet completed, current included
func (r *Request) Remaining() int {
	if r.done {
		return 0
	}
	return len(r.segs) - r.seg
}

// Bytes returns the total payload size
func (r *Request) Bytes() int {
	total := 0
	for _, s := range r.segs {
		total += len(s)
	}
	return total
}

// Done reports whether the request has been ended
func (r *Request) Done() bool { return r.done }

// Err returns the first error the request was completed with
func (r *Request) Err() error { return r.err }

// Advance completes the current chunk with err and moves the cursor to the
// next one. It returns true if chunks remain; otherwise the request is
// finished.
func (r *Request) Advance(sectorSize uint32, err error) bool {
	if r.done {
		return false
	}
	if err != nil && r.err == nil {
		r.err = err
	}
	r.sector += uint64(r.CurSectors(sectorSize))
	r.seg++
	if r.seg >= len(r.segs) {
		r.done = true
		return false
	}
	return true
}

// Finish ends the request, dropping any chunks not yet transferred
func (r *Request) Finish(err error) {
	if r.done {
		return
	}
	if err != nil && r.err == nil {
		r.err = err
	}
	r.seg = len(r.segs)
	r.done = true
}
