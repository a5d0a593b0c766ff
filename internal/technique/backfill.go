package technique

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// backfillDefaults lists the optional version fields and their empty values,
// in the order they are appended. context defaults to strings, not lists.
var backfillDefaults = []struct {
	field string
	empty string
}{
	{FieldKeyPoints, `{"en":[],"de":[]}`},
	{FieldCommonMistakes, `{"en":[],"de":[]}`},
	{FieldContext, `{"en":"","de":""}`},
}

// Backfill adds empty keyPoints, commonMistakes and context values to every
// version entry missing them. Existing values and key positions are never
// touched; new keys are appended to the end of their version entry.
//
// It only checks for field presence, so it works on v1 and v2 records alike.
// When nothing is missing, doc is returned as-is and changed is false.
func Backfill(doc []byte) (out []byte, changed bool, err error) {
	record, err := parseRecord(doc)
	if err != nil {
		return nil, false, err
	}
	versions, err := versionsOf(record)
	if err != nil {
		return nil, false, err
	}

	out = doc
	for i, v := range versions {
		for _, d := range backfillDefaults {
			if v.Get(d.field).Exists() {
				continue
			}
			path := fmt.Sprintf("%s.%d.%s", FieldVersions, i, d.field)
			out, err = sjson.SetRawBytes(out, path, []byte(d.empty))
			if err != nil {
				return nil, false, fmt.Errorf("failed to add %s: %w", path, err)
			}
			changed = true
		}
	}

	if !changed {
		return doc, false, nil
	}
	return out, true, nil
}
