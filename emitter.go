package mandelring

import (
	"io"
	"strconv"
)

// xterm 256-colour control sequences
const (
	colorSetPrefix = "\x1b[38;5;"
	colorSetSuffix = 'm'
	colorReset     = "\x1b[0m"
)

// Row is one fully computed raster row: its index and one palette index per cell.
type Row struct {
	Index  int
	Colors []uint8
}

// Emitter writes rows to the output sink as an xterm colour stream.
//
// Emitter does no locking of its own. Only the current holder of the order ring's permission may
// call WriteRow, and the ring is what makes that a single writer; the gates also provide the
// happens-before edge that hands the internal buffer from one worker to the next.
type Emitter struct {
	w     io.Writer
	glyph byte
	buf   []byte
}

func NewEmitter(w io.Writer, glyph byte) *Emitter {
	return &Emitter{w: w, glyph: glyph}
}

// WriteRow writes, for each cell, a colour-set directive and the glyph, then a newline, all in a
// single Write so that the bytes of one row reach the sink together.
func (e *Emitter) WriteRow(row Row) error {
	e.buf = e.AppendRow(e.buf[:0], row.Colors)
	return e.write(row.Index, e.buf)
}

// AppendRow appends the encoding of one row of colours to buf.
func (e *Emitter) AppendRow(buf []byte, colors []uint8) []byte {
	for _, c := range colors {
		buf = append(buf, colorSetPrefix...)
		buf = strconv.AppendUint(buf, uint64(c), 10)
		buf = append(buf, colorSetSuffix, e.glyph)
	}
	return append(buf, '\n')
}

// Reset writes the colour-reset directive that ends every render, normal or interrupted.
func (e *Emitter) Reset() error {
	return e.write(ResetRow, []byte(colorReset))
}

func (e *Emitter) write(row int, b []byte) error {
	n, err := e.w.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &IOError{Row: row, Err: err}
	}
	return nil
}
