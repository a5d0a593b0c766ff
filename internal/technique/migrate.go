package technique

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/enso-aikido/techmig/internal/lookup"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Entry modes used as keys of stepsByEntry.
const (
	EntryIrimi  = "irimi"
	EntryTenkan = "tenkan"
)

const (
	legacyOfficialID = "v-official"
	standardID       = "v-standard"
	defaultLabel     = "Standard"
)

// leadingFields must all be present and are emitted first, in this order.
var leadingFields = []string{
	FieldID, FieldSlug, FieldName, FieldJP, FieldCategory,
	FieldAttack, FieldWeapon, FieldLevel,
}

// passthroughVersionFields are copied verbatim, in this order, after stepsByEntry.
var passthroughVersionFields = []string{
	FieldUke, FieldKeyPoints, FieldCommonMistakes, FieldContext,
}

// Migrator rewrites v1 technique records into the v2 layout.
type Migrator struct {
	tables *lookup.Tables
}

// NewMigrator creates a Migrator resolving trainers and dojos with tables.
// A nil tables uses lookup.Default().
func NewMigrator(tables *lookup.Tables) *Migrator {
	if tables == nil {
		tables = lookup.Default()
	}
	return &Migrator{tables: tables}
}

// Migrate converts one serialized record to the v2 layout.
//
// Records already at CurrentSchema are returned unchanged with migrated set
// to false. The returned document is not indented; callers format it before
// writing.
func (m *Migrator) Migrate(doc []byte) (out []byte, migrated bool, err error) {
	schema, err := Detect(doc)
	if err != nil {
		return nil, false, err
	}
	if !NeedsMigration(schema) {
		return doc, false, nil
	}

	record := gjson.ParseBytes(doc)
	versions, err := versionsOf(record)
	if err != nil {
		return nil, false, err
	}

	b := newObject()
	for _, key := range leadingFields {
		if err := b.copyRequired(record, key); err != nil {
			return nil, false, err
		}
	}
	b.copyIfPresent(record, FieldAliases)
	if err := b.copyRequired(record, FieldSummary); err != nil {
		return nil, false, err
	}
	b.copyOrDefault(record, FieldTags, "[]")
	b.setRaw(FieldVersions, []byte("[]"))

	for i, v := range versions {
		entry, err := m.migrateVersion(v)
		if err != nil {
			return nil, false, fmt.Errorf("%s[%d]: %w", FieldVersions, i, err)
		}
		b.setRaw(FieldVersions+".-1", entry)
	}

	out, err = b.bytes()
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (m *Migrator) migrateVersion(v gjson.Result) ([]byte, error) {
	b := newObject()

	id := v.Get(FieldID)
	if !id.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, FieldID)
	}
	if id.Type == gjson.String && id.Str == legacyOfficialID {
		b.setString(FieldID, standardID)
	} else {
		b.setRaw(FieldID, []byte(id.Raw))
	}

	if trainerID, ok := m.tables.Trainer(legacyText(v, FieldSensei)); ok {
		b.setString(FieldTrainerID, trainerID)
	}
	if dojoID, ok := m.tables.Dojo(legacyText(v, FieldDojo)); ok {
		b.setString(FieldDojoID, dojoID)
	}

	if label := v.Get(FieldLabel); label.Exists() && !(label.Type == gjson.String && label.Str == defaultLabel) {
		b.setRaw(FieldLabel, []byte(label.Raw))
	}

	if steps := v.Get(FieldSteps); steps.Exists() {
		if !steps.IsObject() {
			return nil, fmt.Errorf("%w: %s is not an object", ErrUnexpectedType, FieldSteps)
		}
		b.setRaw(FieldStepsByEntry+"."+EntryMode(steps), []byte(steps.Raw))
	}

	for _, key := range passthroughVersionFields {
		b.copyIfPresent(v, key)
	}
	b.copyOrDefault(v, FieldMedia, "[]")

	return b.bytes()
}

// EntryMode infers the entry mode of a bilingual steps value: irimi when any
// English step mentions "irimi" in any case, tenkan otherwise. Only a list of
// English steps is searched; a single string is not a step list.
func EntryMode(steps gjson.Result) string {
	mode := EntryTenkan
	en := steps.Get("en")
	if !en.IsArray() {
		return mode
	}
	en.ForEach(func(_, step gjson.Result) bool {
		text := step.Raw
		if step.Type == gjson.String {
			text = step.Str
		}
		if strings.Contains(strings.ToLower(text), EntryIrimi) {
			mode = EntryIrimi
			return false
		}
		return true
	})
	return mode
}

// legacyText returns the string value of a free-text v1 field, or "".
func legacyText(v gjson.Result, key string) string {
	field := v.Get(key)
	if field.Type != gjson.String {
		return ""
	}
	return field.Str
}

// object builds a JSON object whose keys appear in insertion order.
// The first failing edit is kept and later edits become no-ops.
type object struct {
	buf []byte
	err error
}

func newObject() *object {
	return &object{buf: []byte("{}")}
}

func (o *object) setRaw(path string, raw []byte) {
	if o.err != nil {
		return
	}
	o.buf, o.err = sjson.SetRawBytes(o.buf, path, raw)
}

func (o *object) setString(path, s string) {
	raw, err := encodeString(s)
	if err != nil {
		o.err = err
		return
	}
	o.setRaw(path, raw)
}

func (o *object) copyIfPresent(src gjson.Result, key string) {
	if v := src.Get(key); v.Exists() {
		o.setRaw(key, []byte(v.Raw))
	}
}

func (o *object) copyOrDefault(src gjson.Result, key, fallback string) {
	if v := src.Get(key); v.Exists() {
		o.setRaw(key, []byte(v.Raw))
		return
	}
	o.setRaw(key, []byte(fallback))
}

func (o *object) copyRequired(src gjson.Result, key string) error {
	v := src.Get(key)
	if !v.Exists() {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	o.setRaw(key, []byte(v.Raw))
	return nil
}

func (o *object) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, fmt.Errorf("failed to build record: %w", o.err)
	}
	return o.buf, nil
}

// encodeString renders s as a JSON string without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
