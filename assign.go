package mandelring

import "iter"

// RowAssigner is the static striping of rows over workers: worker w owns rows w, w+N, w+2N, ...
// strictly below the raster height. Assignment depends only on (w, N, H), never on timing.
type RowAssigner struct {
	worker  int
	workers int
	height  int
}

func NewRowAssigner(worker, workers, height int) RowAssigner {
	return RowAssigner{worker: worker, workers: workers, height: height}
}

// Rows returns the assigned rows in ascending order. The sequence is lazy and can be ranged over
// any number of times, starting from the first row each time.
func (a RowAssigner) Rows() iter.Seq[int] {
	return func(yield func(int) bool) {
		if a.Empty() {
			return
		}
		for row := a.worker; row < a.height; row += a.workers {
			if !yield(row) {
				return
			}
		}
	}
}

// Count returns the number of assigned rows.
func (a RowAssigner) Count() int {
	if a.Empty() {
		return 0
	}
	return (a.height-a.worker-1)/a.workers + 1
}

// Empty reports whether the worker owns no rows at all, in which case it must never touch the
// order ring.
func (a RowAssigner) Empty() bool {
	return a.workers <= 0 || a.worker < 0 || a.worker >= a.height
}
