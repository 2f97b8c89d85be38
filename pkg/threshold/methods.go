package threshold

import "math"

const maxIterations = 1000

// isoData is the iterative intermeans method. The extreme bins are ignored and
// a dominant mode is clipped before iterating.
func isoData(hist []int) int {
	data := make([]int, len(hist))
	copy(data, hist)
	last := len(data) - 1

	mode, modeCount := 0, 0
	for i, c := range data {
		if c > modeCount {
			mode, modeCount = i, c
		}
	}
	secondCount := 0
	for i, c := range data {
		if i != mode && c > secondCount {
			secondCount = c
		}
	}
	if modeCount > 2*secondCount && secondCount != 0 {
		data[mode] = int(float64(secondCount) * 1.5)
	}

	data[0], data[last] = 0, 0
	lo := 0
	for lo < last && data[lo] == 0 {
		lo++
	}
	hi := last
	for hi > 0 && data[hi] == 0 {
		hi--
	}
	if lo >= hi {
		return len(data) / 2
	}

	moving := lo
	var result float64
	for {
		var sum1, sum2, sum3, sum4 float64
		for i := lo; i <= moving; i++ {
			sum1 += float64(i * data[i])
			sum2 += float64(data[i])
		}
		for i := moving + 1; i <= hi; i++ {
			sum3 += float64(i * data[i])
			sum4 += float64(data[i])
		}
		result = (sum1/sum2 + sum3/sum4) / 2
		moving++
		if !(float64(moving+1) <= result && moving < hi-1) {
			break
		}
	}
	return int(math.Round(result))
}

// huang minimizes the fuzzy entropy of the object/background membership.
func huang(hist []int) int {
	first := 0
	for first < len(hist) && hist[first] == 0 {
		first++
	}
	if first == len(hist) {
		return 0
	}
	last := len(hist) - 1
	for last > first && hist[last] == 0 {
		last--
	}
	if first == last {
		return first
	}

	s := make([]float64, last+1)
	w := make([]float64, last+1)
	s[first] = float64(hist[first])
	w[first] = float64(first * hist[first])
	for i := first + 1; i <= last; i++ {
		s[i] = s[i-1] + float64(hist[i])
		w[i] = w[i-1] + float64(i*hist[i])
	}

	c := float64(last - first)
	smu := make([]float64, last+1-first)
	for i := 1; i < len(smu); i++ {
		mu := 1 / (1 + float64(i)/c)
		smu[i] = -mu*math.Log(mu) - (1-mu)*math.Log(1-mu)
	}

	best, bestEntropy := first, math.MaxFloat64
	for t := first; t <= last; t++ {
		var entropy float64
		mu := int(math.Round(w[t] / s[t]))
		for i := first; i <= t; i++ {
			entropy += smu[abs(i-mu)] * float64(hist[i])
		}
		if rest := s[last] - s[t]; rest > 0 {
			mu = int(math.Round((w[last] - w[t]) / rest))
			for i := t + 1; i <= last; i++ {
				entropy += smu[abs(i-mu)] * float64(hist[i])
			}
		}
		if entropy < bestEntropy {
			best, bestEntropy = t, entropy
		}
	}
	return best
}

// li iterates toward the minimum cross entropy threshold.
func li(hist []int) int {
	var total, sum float64
	for i, c := range hist {
		total += float64(c)
		sum += float64(i * c)
	}
	if total == 0 {
		return 0
	}

	next := sum / total
	for iter := 0; iter < maxIterations; iter++ {
		prev := next
		t := int(prev + 0.5)

		var sumBack, numBack, sumObj, numObj float64
		for i := 0; i <= t && i < len(hist); i++ {
			sumBack += float64(i * hist[i])
			numBack += float64(hist[i])
		}
		for i := t + 1; i < len(hist); i++ {
			sumObj += float64(i * hist[i])
			numObj += float64(hist[i])
		}
		if numBack == 0 || numObj == 0 {
			break
		}
		meanBack := sumBack / numBack
		meanObj := sumObj / numObj

		temp := (meanBack - meanObj) / (math.Log(meanBack) - math.Log(meanObj))
		if math.IsNaN(temp) {
			break
		}
		if temp < -2.220446049250313e-16 {
			next = float64(int(temp - 0.5))
		} else {
			next = float64(int(temp + 0.5))
		}
		if math.Abs(next-prev) <= 0.5 {
			break
		}
	}
	return int(next + 0.5)
}

// mean uses the mean bin as the level.
func mean(hist []int) int {
	var total, sum float64
	for i, c := range hist {
		total += float64(c)
		sum += float64(i * c)
	}
	if total == 0 {
		return 0
	}
	return int(math.Floor(sum / total))
}

// otsu maximizes the between-class variance.
func otsu(hist []int) int {
	var total, sum float64
	for i, c := range hist {
		total += float64(c)
		sum += float64(i * c)
	}

	var sumB, wB, best float64
	level := 0
	for t, c := range hist {
		wB += float64(c)
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * c)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		if between := wB * wF * (mB - mF) * (mB - mF); between > best {
			best = between
			level = t
		}
	}
	return level
}

// triangle draws a line from the histogram peak to the far end of the
// histogram and picks the bin furthest below it.
func triangle(hist []int) int {
	n := len(hist)
	data := make([]int, n)
	copy(data, hist)

	lo := 0
	for i, c := range data {
		if c > 0 {
			lo = i
			break
		}
	}
	if lo > 0 {
		lo--
	}
	hi := 0
	for i := n - 1; i > 0; i-- {
		if data[i] > 0 {
			hi = i
			break
		}
	}
	if hi < n-1 {
		hi++
	}
	peak, peakCount := 0, 0
	for i, c := range data {
		if c > peakCount {
			peak, peakCount = i, c
		}
	}

	inverted := false
	if peak-lo < hi-peak {
		inverted = true
		reverse(data)
		lo = n - 1 - hi
		peak = n - 1 - peak
	}
	if lo == peak {
		if inverted {
			return n - 1 - lo
		}
		return lo
	}

	nx := float64(data[peak])
	ny := float64(lo - peak)
	d := math.Hypot(nx, ny)
	nx /= d
	ny /= d
	d = nx*float64(lo) + ny*float64(data[lo])

	split, splitDistance := lo, 0.0
	for i := lo + 1; i <= peak; i++ {
		if dist := nx*float64(i) + ny*float64(data[i]) - d; dist > splitDistance {
			split, splitDistance = i, dist
		}
	}
	split--

	if inverted {
		return n - 1 - split
	}
	return split
}

func reverse(a []int) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
