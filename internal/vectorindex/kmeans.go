package vectorindex

import "math"

// kmeans clusters unit vectors with spherical k-means. Seeds are spread
// evenly over points, which the caller passes in a stable order, so the
// result is deterministic.
func kmeans(points [][]float32, k, iterations int) [][]float32 {
	if k > len(points) {
		k = len(points)
	}
	dims := len(points[0])

	centroids := make([][]float32, k)
	step := float64(len(points)) / float64(k)
	for i := range centroids {
		centroids[i] = append([]float32(nil), points[int(float64(i)*step)]...)
	}

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(centroids, p)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for i, p := range points {
			c := assign[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			// Empty clusters keep their previous centroid.
			if counts[c] == 0 {
				continue
			}
			next := make([]float32, dims)
			for d := range next {
				next[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = normalize(next)
		}
	}
	return centroids
}

func nearest(centroids [][]float32, v []float32) int {
	best, bestSim := 0, math.Inf(-1)
	for i, c := range centroids {
		if sim := dot(v, c); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalize returns a unit-length copy of v. A zero vector stays zero and
// therefore has similarity 0 with everything.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
