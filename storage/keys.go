// storage/keys.go
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Key builders are pure functions of their inputs so that a rerun over the
// same data resolves to the same object key.

// EconomicIndicatorsKey names the indicator CSV published on date.
func EconomicIndicatorsKey(date time.Time) string {
	return fmt.Sprintf("economic_indicators/economic indicators_on_%s.csv", date.Format("20060102"))
}

// ExecutiveOrdersKey uses a Hive-style dt=/lang= layout so the warehouse can
// discover partitions.
func ExecutiveOrdersKey(runDate time.Time, maxDocumentID int64, maxPublishedOn string) string {
	return fmt.Sprintf("executive_orders/dt=%s/lang=en/executive_orders_through_%d_on_%s.json",
		runDate.Format("2006-01-02"), maxDocumentID, maxPublishedOn)
}

// ApprovalsKey names the combined approval CSV by its newest poll start date,
// written M-D-YYYY so the key keeps a single path segment.
func ApprovalsKey(maxStartDate time.Time) string {
	date := strings.ReplaceAll(maxStartDate.Format("1/2/2006"), "/", "-")
	return fmt.Sprintf("presidential_approvals/approval ratings loaded through %s.csv", date)
}
