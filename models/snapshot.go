// models/snapshot.go
package models

import "time"

// Snapshot is the latest run of the weekly feature table, one row per week in
// chronological order. Series holds one numeric column per entry of Columns;
// missing values are NaN.
type Snapshot struct {
	RunDate time.Time
	Weeks   []time.Time
	Columns []string
	Series  [][]float64
}

// Column returns the series named name.
func (s *Snapshot) Column(name string) ([]float64, bool) {
	for i, c := range s.Columns {
		if c == name {
			return s.Series[i], true
		}
	}
	return nil, false
}

// Len is the number of weeks.
func (s *Snapshot) Len() int { return len(s.Weeks) }
