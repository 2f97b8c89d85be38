package mask

// Renumber relabels l densely from 1 in the raster order of each label's
// first pixel and sets N accordingly. Negative values are treated as background.
func Renumber(l Labels) Labels {
	out := Labels{Width: l.Width, Height: l.Height, Pix: make([]int32, len(l.Pix))}
	remap := make(map[int32]int32)
	var next int32
	for i, v := range l.Pix {
		if v <= 0 {
			continue
		}
		id, ok := remap[v]
		if !ok {
			next++
			id = next
			remap[v] = id
		}
		out.Pix[i] = id
	}
	out.N = int(next)
	return out
}

// Largest keeps only the biggest label of l as a binary mask and returns its
// pixel count; ties keep the lower label. An empty image yields an empty
// mask and 0.
func (l Labels) Largest() (Binary, int) {
	out := NewBinary(l.Width, l.Height)
	if l.N == 0 {
		return out, 0
	}

	sizes := l.Sizes()
	best := 1
	for id := 2; id <= l.N; id++ {
		if sizes[id] > sizes[best] {
			best = id
		}
	}
	if sizes[best] == 0 {
		return out, 0
	}

	for i, v := range l.Pix {
		out.Pix[i] = int(v) == best
	}
	return out, sizes[best]
}
