// models/executive_order.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DocumentNumber is a presidential document number. The Federal Register API
// sends it as a string, but numeric values are accepted as well.
type DocumentNumber string

func (d *DocumentNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DocumentNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("presidential_document_number: %w", err)
	}
	*d = DocumentNumber(n.String())
	return nil
}

// President identifies the signer of an executive order.
type President struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// ExecutiveOrder is one record of the Federal Register documents API. The
// typed fields are the ones the collector summarizes; null fields stay nil.
// Raw keeps the record as the API sent it, every field included.
type ExecutiveOrder struct {
	PresidentialDocumentNumber *DocumentNumber `json:"presidential_document_number"`
	President                  *President      `json:"president"`
	PublicationDate            *string         `json:"publication_date"`
	Raw                        json.RawMessage `json:"-"`
}

func (e *ExecutiveOrder) UnmarshalJSON(data []byte) error {
	type fields ExecutiveOrder
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*e = ExecutiveOrder(f)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes Raw when the record was decoded from the API.
func (e ExecutiveOrder) MarshalJSON() ([]byte, error) {
	if e.Raw != nil {
		return e.Raw, nil
	}
	type fields ExecutiveOrder
	return json.Marshal(fields(e))
}

// ExecutiveOrderPage is a single page of the paginated documents endpoint.
type ExecutiveOrderPage struct {
	Count       int              `json:"count"`
	TotalPages  int              `json:"total_pages"`
	NextPageURL *string          `json:"next_page_url"`
	Results     []ExecutiveOrder `json:"results"`
}

// ExecutiveOrderSummary holds the facts derived from an accumulated set of orders.
type ExecutiveOrderSummary struct {
	Records        int
	MaxDocumentID  int64
	MaxPublishedOn string // YYYY-MM-DD
}
