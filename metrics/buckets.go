package metrics

var (
	// DurationBuckets covers sub-millisecond to 10s operations.
	DurationBuckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	// ProvingBuckets covers proof computations, which run from seconds to hours.
	ProvingBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200}

	// CountBuckets is used for queue depths and batch sizes.
	CountBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)
