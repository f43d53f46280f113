package taskname

const (
	// Stats tasks
	StatsRecompute = "stats:recompute"
)
