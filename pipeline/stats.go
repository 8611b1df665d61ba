package pipeline

// FileStats summarizes one corpus file of a stage.
type FileStats struct {
	Name    string `json:"name"`
	Words   int    `json:"words"`
	Errors  int    `json:"errors"`
	Skipped int    `json:"skipped,omitempty"`
}

// Totals sums the counters of every file; the name is left empty.
func Totals(stats []FileStats) FileStats {
	var total FileStats
	for _, s := range stats {
		total.Words += s.Words
		total.Errors += s.Errors
		total.Skipped += s.Skipped
	}
	return total
}
