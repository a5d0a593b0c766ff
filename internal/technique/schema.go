// Package technique implements the pure transforms applied to technique
// records: the v1 to v2 schema migration and the backfill of optional
// localized version fields.
//
// Records are handled as raw JSON bytes. Reads go through gjson and edits
// through sjson, so object key order is exactly the order in which keys are
// written and values copied verbatim keep their nested layout.
package technique

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// Top-level record fields.
const (
	FieldID       = "id"
	FieldSlug     = "slug"
	FieldName     = "name"
	FieldJP       = "jp"
	FieldCategory = "category"
	FieldAttack   = "attack"
	FieldWeapon   = "weapon"
	FieldLevel    = "level"
	FieldAliases  = "aliases"
	FieldSummary  = "summary"
	FieldTags     = "tags"
	FieldVersions = "versions"
	FieldStance   = "stance" // v1 only
)

// Version entry fields.
const (
	FieldTrainerID      = "trainerId"
	FieldDojoID         = "dojoId"
	FieldLabel          = "label"
	FieldStepsByEntry   = "stepsByEntry"
	FieldUke            = "uke"
	FieldKeyPoints      = "keyPoints"
	FieldCommonMistakes = "commonMistakes"
	FieldContext        = "context"
	FieldMedia          = "media"

	// v1 only
	FieldSensei = "sensei"
	FieldDojo   = "dojo"
	FieldSteps  = "steps"
)

var (
	// ErrInvalidJSON is returned for documents that do not parse.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrUnexpectedType is returned when a record or one of its parts has the wrong JSON type.
	ErrUnexpectedType = errors.New("unexpected JSON type")
	// ErrMissingField is returned when a mandatory field is absent.
	ErrMissingField = errors.New("missing mandatory field")
	// ErrMixedSchema is returned for records carrying both v1 and v2 fields.
	ErrMixedSchema = errors.New("record mixes v1 and v2 fields")
)

// Schema is a record schema version in semver major form ("v1", "v2").
type Schema string

const (
	SchemaV1 Schema = "v1"
	SchemaV2 Schema = "v2"

	// CurrentSchema is the version Migrate produces.
	CurrentSchema = SchemaV2
)

var (
	legacyVersionFields  = []string{FieldSteps, FieldSensei, FieldDojo}
	currentVersionFields = []string{FieldStepsByEntry, FieldTrainerID, FieldDojoID}
)

// Detect classifies a record by the fields only one schema version uses.
//
// A record with v2-only version fields and no v1-only fields is v2. Records
// without markers of either kind are reported as v1: migrating them only
// normalizes key order and defaults, and the result is a fixed point.
func Detect(doc []byte) (Schema, error) {
	record, err := parseRecord(doc)
	if err != nil {
		return "", err
	}

	legacy := record.Get(FieldStance).Exists()
	current := false

	if versions := record.Get(FieldVersions); versions.IsArray() {
		versions.ForEach(func(_, v gjson.Result) bool {
			legacy = legacy || hasAny(v, legacyVersionFields)
			current = current || hasAny(v, currentVersionFields)
			return true
		})
	}

	switch {
	case legacy && current:
		return "", ErrMixedSchema
	case current:
		return SchemaV2, nil
	default:
		return SchemaV1, nil
	}
}

// NeedsMigration reports whether s is older than CurrentSchema.
func NeedsMigration(s Schema) bool {
	if !semver.IsValid(string(s)) {
		return true
	}
	return semver.Compare(string(s), string(CurrentSchema)) < 0
}

func hasAny(obj gjson.Result, fields []string) bool {
	for _, f := range fields {
		if obj.Get(f).Exists() {
			return true
		}
	}
	return false
}

func parseRecord(doc []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(doc) {
		return gjson.Result{}, ErrInvalidJSON
	}
	record := gjson.ParseBytes(doc)
	if !record.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: record is not an object", ErrUnexpectedType)
	}
	// gjson resolves a repeated key to its first value, other readers to the
	// last one. Refuse to pick.
	if err := checkDuplicateKeys(record, ""); err != nil {
		return gjson.Result{}, err
	}
	return record, nil
}

func checkDuplicateKeys(r gjson.Result, path string) error {
	var err error
	switch {
	case r.IsObject():
		seen := make(map[string]struct{})
		r.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			keyPath := name
			if path != "" {
				keyPath = path + "." + name
			}
			if _, dup := seen[name]; dup {
				err = fmt.Errorf("%w: duplicate key %s", ErrInvalidJSON, keyPath)
				return false
			}
			seen[name] = struct{}{}
			err = checkDuplicateKeys(value, keyPath)
			return err == nil
		})
	case r.IsArray():
		i := 0
		r.ForEach(func(_, value gjson.Result) bool {
			err = checkDuplicateKeys(value, fmt.Sprintf("%s[%d]", path, i))
			i++
			return err == nil
		})
	}
	return err
}

// versionsOf returns the version entries of record. A missing versions key
// yields no entries; any other non-array value is an error.
func versionsOf(record gjson.Result) ([]gjson.Result, error) {
	versions := record.Get(FieldVersions)
	if !versions.Exists() {
		return nil, nil
	}
	if !versions.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrUnexpectedType, FieldVersions)
	}

	entries := versions.Array()
	for i, v := range entries {
		if !v.IsObject() {
			return nil, fmt.Errorf("%w: %s[%d] is not an object", ErrUnexpectedType, FieldVersions, i)
		}
	}
	return entries, nil
}
