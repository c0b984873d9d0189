// models/approval.go
package models

// ApprovalRating is one poll row from a president's approval page.
// CSV tags match the headers of the first table on the page; President is
// added by the collector.
type ApprovalRating struct {
	StartDate    string `csv:"Start Date" json:"start_date"`
	EndDate      string `csv:"End Date" json:"end_date"`
	Approving    string `csv:"Approving" json:"approving"`
	Disapproving string `csv:"Disapproving" json:"disapproving"`
	Unsure       string `csv:"Unsure/No Data" json:"unsure"`
	President    string `csv:"president" json:"president"`

	// Extra holds the page's other columns by header.
	Extra map[string]string `csv:"-" json:"extra,omitempty"`
}
