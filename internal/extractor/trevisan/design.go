package trevisan

import (
	"fmt"
	"math"
	"sort"
)

// hrRatio is the overlap parameter r = 2e of the Hartman–Raz design.
const hrRatio = 5.43656365691809

// hrDesign is the Hartman–Raz weak design. Set i is the graph
// {(a, p_i(a)) : a in GF(t)} of the polynomial p_i whose coefficients are the
// base-t digits of i, flattened into [0, t^2).
type hrDesign struct {
	field *Field
	m     int
	logT  int
	t     int
	c     int
}

func newHRDesign(m, logT int) (*hrDesign, error) {
	field, err := NewField(logT)
	if err != nil {
		return nil, fmt.Errorf("weak design field: %w", err)
	}
	logM := 0
	for 1<<logM < m {
		logM++
	}
	return &hrDesign{
		field: field,
		m:     m,
		logT:  logT,
		t:     1 << logT,
		c:     (logM + logT - 1) / logT,
	}, nil
}

// set writes the first len(dst) elements of set i into dst.
func (h *hrDesign) set(i int, dst []uint64) error {
	if i < 0 || i >= h.m {
		return fmt.Errorf("trevisan: index %d outside weak design of size %d", i, h.m)
	}
	mask := uint64(h.t - 1)
	alphas := make([]Poly, h.c)
	for j := range alphas {
		shift := uint(j * h.logT)
		if shift < 64 {
			alphas[j] = PolyFromUint(uint64(i) >> shift & mask)
		}
	}
	for a := range dst {
		b := h.field.Horner(alphas, PolyFromUint(uint64(a))).Uint64()
		dst[a] = uint64(a)<<uint(h.logT) + b
	}
	return nil
}

// blockDesign is the block weak design with overlap r = 1 built from copies
// of a Hartman–Raz design, each copy shifted into its own range of t^2 seed
// positions.
type blockDesign struct {
	base   *hrDesign
	m      int
	t      int
	blocks int
	sumMs  []int
}

// blockCount returns the number of design blocks l used for m sets over a
// field of size t; the total seed length is (l+1)*t^2.
func blockCount(m, t int) int {
	num := math.Log(float64(m)-hrRatio) - math.Log(float64(t)-hrRatio)
	den := math.Log(hrRatio) - math.Log(hrRatio-1)
	l := math.Ceil(num / den)
	if math.IsNaN(l) || l < 1 {
		return 1
	}
	return int(l)
}

func newBlockDesign(m, logT int) (*blockDesign, error) {
	t := 1 << logT
	baseM := max(int(math.Ceil(float64(m)/hrRatio-1)), t)
	base, err := newHRDesign(baseM, logT)
	if err != nil {
		return nil, err
	}
	l := blockCount(m, t)

	sumMs := make([]int, 1, l+2)
	acc := 0.0
	for i := 0; i < l; i++ {
		acc += math.Pow(1-1/hrRatio, float64(i)) * (float64(m)/hrRatio - 1)
		next := int(math.Ceil(acc))
		sumMs = append(sumMs, max(next, sumMs[len(sumMs)-1]))
	}
	sumMs = append(sumMs, m)
	for i := 1; i < len(sumMs); i++ {
		if sumMs[i]-sumMs[i-1] > baseM {
			return nil, fmt.Errorf("trevisan: block %d holds %d sets, base design only %d", i-1, sumMs[i]-sumMs[i-1], baseM)
		}
	}
	return &blockDesign{base: base, m: m, t: t, blocks: l, sumMs: sumMs}, nil
}

// seedLength is the number of seed bits the design indexes.
func (b *blockDesign) seedLength() int { return (b.blocks + 1) * b.t * b.t }

func (b *blockDesign) set(i int, dst []uint64) error {
	if i < 0 || i >= b.m {
		return fmt.Errorf("trevisan: index %d outside block design of size %d", i, b.m)
	}
	// Largest block whose first set index is <= i.
	ind := sort.Search(b.blocks+1, func(j int) bool { return b.sumMs[j] > i }) - 1
	if err := b.base.set(i-b.sumMs[ind], dst); err != nil {
		return err
	}
	off := uint64(ind * b.t * b.t)
	for k := range dst {
		dst[k] += off
	}
	return nil
}
