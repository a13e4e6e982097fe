// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
)

// ErrAverageDepth is returned when an averaging depth is outside [0, max].
var ErrAverageDepth = errors.New("average depth out of range")

// Averager keeps a rolling mean of the last K spectra.
//
// History lives in a single arena sized for the maximum depth, so changing K
// never allocates. The running sum always equals the sum of the last
// min(frames, K) stored rows divided by K; rows not yet written count as zero,
// which biases the mean low until K frames have been seen.
type Averager struct {
	n        int
	maxDepth int
	depth    int
	invDepth float64
	count    uint64

	history []float32 // maxDepth rows of n
	sum     []float64
}

// NewAverager allocates history for up to maxDepth frames of n bins and starts
// at the given depth.
func NewAverager(n, maxDepth, depth int) (*Averager, error) {
	if n < 1 {
		return nil, fmt.Errorf("averager: bin count must be positive, got %d", n)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth %d", ErrAverageDepth, maxDepth)
	}
	a := &Averager{
		n:        n,
		maxDepth: maxDepth,
		history:  make([]float32, maxDepth*n),
		sum:      make([]float64, n),
	}
	if err := a.Reset(depth); err != nil {
		return nil, err
	}
	return a, nil
}

// Reset clears the history and switches to depth k. A depth of zero disables
// averaging.
func (a *Averager) Reset(k int) error {
	if k < 0 || k > a.maxDepth {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrAverageDepth, k, a.maxDepth)
	}
	a.depth = k
	a.count = 0
	a.invDepth = 0
	if k > 0 {
		a.invDepth = 1 / float64(k)
	}
	clear(a.sum)
	return nil
}

// Depth returns the active averaging depth.
func (a *Averager) Depth() int {
	return a.depth
}

// MaxDepth returns the largest depth the history can hold.
func (a *Averager) MaxDepth() int {
	return a.maxDepth
}

// Frames returns the number of frames added since the last Reset.
func (a *Averager) Frames() uint64 {
	return a.count
}

// Add folds frame into the average and returns the averaged spectrum. With a
// depth of zero frame is returned unchanged. The returned slice belongs to the
// Averager and is valid until the next call.
func (a *Averager) Add(frame []float64) []float64 {
	if a.depth == 0 {
		return frame
	}

	k := uint64(a.depth)
	slot := int(a.count % k)
	row := a.history[slot*a.n : (slot+1)*a.n]
	sum := a.sum[:len(row)]
	frame = frame[:len(row)]

	if a.count >= k {
		for i, old := range row {
			sum[i] -= float64(old) * a.invDepth
		}
	}
	// The stored float32 value is what gets added, so the later eviction
	// removes exactly the same contribution.
	for i, v := range frame {
		row[i] = float32(v)
		sum[i] += float64(row[i]) * a.invDepth
	}
	a.count++

	return sum
}
