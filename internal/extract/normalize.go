package extract

import "github.com/buildlens/delivery-intake/internal/delivery"

// Field keys recognized in extraction results. Lookup is literal: unknown
// keys are discarded, absent keys become empty strings. Extraction never
// fails a record, it degrades to blanks.
var (
	intakeFields = []string{"name", "quantity", "size", "volume", "netWeight"}
	reviewFields = []string{"name", "quantity", "size", "volume", "weight", "unit", "supplier"}
)

// Normalize maps free-form extraction results into material records with the
// fixed field set for the flow kind. No unit conversion or validation is
// performed; the same input always yields the same records.
func Normalize(results []Result, kind delivery.FlowKind) []delivery.MaterialRecord {
	records := make([]delivery.MaterialRecord, 0, len(results))
	for _, r := range results {
		records = append(records, normalizeOne(r, kind))
	}
	return records
}

func normalizeOne(r Result, kind delivery.FlowKind) delivery.MaterialRecord {
	rec := delivery.MaterialRecord{Flow: kind}

	fields := intakeFields
	if kind == delivery.FlowReview {
		fields = reviewFields
	}

	for _, key := range fields {
		value := r.Fields[key]
		switch key {
		case "name":
			rec.Name = value
		case "quantity":
			rec.Quantity = value
		case "size":
			rec.Size = value
		case "volume":
			rec.Volume = value
		case "netWeight":
			rec.NetWeight = value
		case "weight":
			rec.Weight = value
		case "unit":
			rec.Unit = value
		case "supplier":
			rec.Supplier = value
		}
	}
	return rec
}
