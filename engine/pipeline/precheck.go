package pipeline

import (
	"fmt"
	"strings"

	"github.com/compozy/orderetl/engine/order"
	"github.com/tidwall/gjson"
)

// requiredKeys must be present at the top level of every document before a
// batch is normalized. Their values may still be null.
var requiredKeys = []string{"order_id", "order_number", "created_at"}

// StructureError reports a document that is not an order object or lacks
// required top-level keys.
type StructureError struct {
	Source  string
	Missing []string
}

func (e *StructureError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("document %s is not a JSON object", e.Source)
	}
	return fmt.Sprintf("document %s missing required fields: %s", e.Source, strings.Join(e.Missing, ", "))
}

func precheck(batch []order.Raw) error {
	for _, raw := range batch {
		doc := gjson.ParseBytes(raw.Data)
		if !doc.IsObject() {
			return &StructureError{Source: raw.Source}
		}
		var missing []string
		for _, key := range requiredKeys {
			if !doc.Get(key).Exists() {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return &StructureError{Source: raw.Source, Missing: missing}
		}
	}
	return nil
}
