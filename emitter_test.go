package mandelring_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/mandelring"
)

func TestEmitterEncoding(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := mandelring.NewEmitter(&buf, '#')

	require.NoError(t, e.WriteRow(mandelring.Row{Index: 0, Colors: []uint8{16, 231}}))
	require.NoError(t, e.WriteRow(mandelring.Row{Index: 1, Colors: []uint8{0}}))
	require.NoError(t, e.Reset())

	require.Equal(t, "\x1b[38;5;16m#\x1b[38;5;231m#\n\x1b[38;5;0m#\n\x1b[0m", buf.String())
	require.Equal(t, []byte("\x1b[38;5;7m#\n"), e.AppendRow(nil, []uint8{7}))
	require.Equal(t, []byte("\n"), e.AppendRow(nil, nil))
}

// writes go through until the budget runs out, then fail
type limitedWriter struct {
	budget int
	writes int
	buf    bytes.Buffer
	err    error
}

var errSinkFull = errors.New("sink full")

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.writes >= w.budget {
		if w.err != nil {
			return 0, w.err
		}
		return 0, errSinkFull
	}
	w.writes++
	return w.buf.Write(p)
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestEmitterWriteErrors(t *testing.T) {
	t.Parallel()

	w := &limitedWriter{budget: 1}
	e := mandelring.NewEmitter(w, '@')
	require.NoError(t, e.WriteRow(mandelring.Row{Index: 0, Colors: []uint8{20}}))

	err := e.WriteRow(mandelring.Row{Index: 1, Colors: []uint8{20}})
	var ioErr *mandelring.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, 1, ioErr.Row)
	require.ErrorIs(t, err, errSinkFull)

	err = e.Reset()
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, mandelring.ResetRow, ioErr.Row)
	require.Equal(t, "write colour reset: sink full", err.Error())

	err = mandelring.NewEmitter(shortWriter{}, '@').WriteRow(mandelring.Row{Index: 4, Colors: []uint8{1, 2}})
	require.ErrorIs(t, err, io.ErrShortWrite)
	require.Equal(t, "write row 4: short write", err.Error())

	unknown := &mandelring.IOError{Row: mandelring.UnknownRow, Err: errSinkFull}
	require.Equal(t, "write row: sink full", unknown.Error())
}
