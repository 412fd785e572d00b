package domain

// transitions enumerates every legal (from, to) pair. Anything absent is an error.
var transitions = map[Status]map[Status]bool{
	StatusCreated: {
		StatusHistoryCrawling: true,
	},
	StatusHistoryCrawling: {
		StatusHistoryCompleted: true,
		StatusPaused:           true,
		StatusFailed:           true,
	},
	StatusHistoryCompleted: {
		StatusIncrementalCrawling: true,
	},
	StatusIncrementalCrawling: {
		StatusPaused: true,
		StatusFailed: true,
	},
	StatusPaused: {
		StatusHistoryCrawling:     true,
		StatusIncrementalCrawling: true,
	},
	StatusFailed: {
		StatusHistoryCrawling: true,
	},
}

// CanTransition reports whether from -> to is a legal status transition
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}
