package metrics

// RunDurationBuckets defines latency buckets for whole pipeline runs in seconds.
var RunDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// LoadDurationBuckets defines latency buckets for a single batch transaction.
var LoadDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// BatchSizeBuckets groups batches by the number of orders they carry.
var BatchSizeBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
