package mandelring

import (
	"runtime"
	"strconv"
	"sync"
)

// StackTrace is a captured call stack, optionally linked to the stack of whatever spawned the
// goroutine it was captured on. Workers keep the coordinator's spawn stack as their parent, so a
// ConsistencyError raised deep inside a worker still shows where that worker came from.
type StackTrace struct {
	// Label names the execution unit the frames belong to, e.g. "worker 3". May be empty.
	Label  string
	Frames []StackFrame
	Parent *StackTrace
}

type StackFrame struct {
	Function string
	File     string
	Line     int
}

// GetStackTrace captures the caller's stack, skipping skip additional frames, and links it to
// parent.
func GetStackTrace(parent *StackTrace, skip uint) StackTrace {
	frames := getFrames(skip + 1) // skip GetStackTrace itself
	return StackTrace{Frames: frames, Parent: parent}
}

// WithLabel returns a copy of st labeled with label.
func (st StackTrace) WithLabel(label string) StackTrace {
	st.Label = label
	return st
}

func (st StackTrace) String() string {
	var buf []byte

	for first := true; ; first = false {
		if !first {
			buf = append(buf, "spawned by "...)
		}
		if st.Label != "" {
			buf = append(buf, st.Label...)
			buf = append(buf, ":\n"...)
		}

		if len(st.Frames) == 0 {
			buf = append(buf, "<empty stack>\n"...)
		}
		for _, f := range st.Frames {
			buf = appendFrame(buf, f)
		}

		if st.Parent == nil {
			break
		}
		st = *st.Parent
	}

	return string(buf)
}

func appendFrame(buf []byte, f StackFrame) []byte {
	if f.Function == "" {
		buf = append(buf, "<unknown function>"...)
	} else {
		buf = append(buf, f.Function...)
		buf = append(buf, "(...)"...)
	}
	buf = append(buf, "\n\t"...)

	if f.File == "" {
		buf = append(buf, "<unknown file>"...)
	} else {
		buf = append(buf, f.File...)
		if f.Line != 0 {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(f.Line), 10)
		}
	}
	return append(buf, '\n')
}

var pcBufPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 64)
		return &buf
	},
}

func putPCBuffer(buf *[]uintptr) {
	if len(*buf) <= 1024 {
		pcBufPool.Put(buf)
	}
}

func getFrames(skip uint) []StackFrame {
	skip += 2 // getFrames and runtime.Callers

	pcBuf := pcBufPool.Get().(*[]uintptr)
	defer putPCBuffer(pcBuf)

	// grow until the whole stack fits
	var pc []uintptr
	for {
		n := runtime.Callers(0, *pcBuf)
		if n < len(*pcBuf) {
			pc = (*pcBuf)[:n]
			break
		}
		*pcBuf = make([]uintptr, 2*len(*pcBuf))
	}

	iter := runtime.CallersFrames(pc)
	var frames []StackFrame
	for more := true; more; {
		var frame runtime.Frame
		frame, more = iter.Next()

		if skip > 0 {
			skip -= 1
			continue
		}
		frames = append(frames, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
	}

	return frames
}
