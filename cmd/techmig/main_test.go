package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/enso-aikido/techmig/internal/config"
	"github.com/enso-aikido/techmig/internal/ui"
	"github.com/google/go-cmp/cmp"
	"github.com/muesli/termenv"
)

const v1Technique = `{"id":"irimi-nage","slug":"irimi-nage","name":{"en":"Irimi Nage","de":"Irimi Nage"},` +
	`"jp":"入身投げ","category":"nage-waza","attack":"shomen-uchi","stance":"ai-hanmi","tags":["throw"],` +
	`"weapon":"empty-hand","level":"kyu5","summary":{"en":"Entering throw.","de":"Eintretender Wurf."},` +
	`"versions":[{"id":"v-official","sensei":"Alfred Haase","dojo":"—","label":"Standard",` +
	`"steps":{"en":["Step with irimi entry"],"de":["Schritt"]}}]}`

const v2Technique = `{
  "id": "irimi-nage",
  "slug": "irimi-nage",
  "name": {
    "en": "Irimi Nage",
    "de": "Irimi Nage"
  },
  "jp": "入身投げ",
  "category": "nage-waza",
  "attack": "shomen-uchi",
  "weapon": "empty-hand",
  "level": "kyu5",
  "summary": {
    "en": "Entering throw.",
    "de": "Eintretender Wurf."
  },
  "tags": [
    "throw"
  ],
  "versions": [
    {
      "id": "v-standard",
      "trainerId": "alfred-haase",
      "stepsByEntry": {
        "irimi": {
          "en": [
            "Step with irimi entry"
          ],
          "de": [
            "Schritt"
          ]
        }
      },
      "media": []
    }
  ]
}
`

func TestMain(m *testing.M) {
	ui.DisableColor()
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TECHMIG_DIR", "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTechniques(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func readTechnique(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestMigrateCommand(t *testing.T) {
	dir := writeTechniques(t, map[string]string{
		"a.json": v1Technique,
		"b.json": v2Technique,
		"c.json": `{"id":"broken"`,
	})

	out, err := execute(t, "migrate", "--dir", dir, "--yes")
	if err == nil || !strings.Contains(err.Error(), "1 of 3 files failed") {
		t.Fatalf("expected failure summary error, got %v", err)
	}

	for _, want := range []string{
		"Transformed: " + filepath.Join(dir, "a.json"),
		"Already migrated: " + filepath.Join(dir, "b.json"),
		"Error processing " + filepath.Join(dir, "c.json"),
		"1 changed, 1 unchanged, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	if diff := cmp.Diff(v2Technique, readTechnique(t, dir, "a.json")); diff != "" {
		t.Errorf("migrated record mismatch (-want +got):\n%s", diff)
	}
	if got := readTechnique(t, dir, "b.json"); got != v2Technique {
		t.Errorf("expected v2 record to be untouched, got:\n%s", got)
	}
}

func TestMigrateCommandTwice(t *testing.T) {
	dir := writeTechniques(t, map[string]string{"a.json": v1Technique})

	if _, err := execute(t, "migrate", "--dir", dir, "--yes"); err != nil {
		t.Fatalf("first migrate failed: %v", err)
	}
	out, err := execute(t, "migrate", "--dir", dir, "--yes")
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(out, "0 changed, 1 unchanged, 0 failed") {
		t.Errorf("expected second run to change nothing, got:\n%s", out)
	}
	if diff := cmp.Diff(v2Technique, readTechnique(t, dir, "a.json")); diff != "" {
		t.Errorf("record changed on second run (-want +got):\n%s", diff)
	}
}

func TestMigrateCommandUnmarkedRecord(t *testing.T) {
	// No version carries v1 or v2 fields, so the record migrates onto itself.
	unmarked := "{\n  \"id\": \"x\",\n  \"slug\": \"x\",\n  \"name\": \"X\",\n  \"jp\": \"x\",\n" +
		"  \"category\": \"c\",\n  \"attack\": \"a\",\n  \"weapon\": \"w\",\n  \"level\": \"l\",\n" +
		"  \"summary\": \"s\",\n  \"tags\": [],\n  \"versions\": []\n}\n"
	dir := writeTechniques(t, map[string]string{"a.json": unmarked})

	out, err := execute(t, "migrate", "--dir", dir, "--yes")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "No change needed: "+filepath.Join(dir, "a.json")) {
		t.Errorf("expected no-change line, got:\n%s", out)
	}
	if strings.Contains(out, "Already migrated") {
		t.Errorf("expected unmarked record not to be reported as migrated, got:\n%s", out)
	}
	if got := readTechnique(t, dir, "a.json"); got != unmarked {
		t.Errorf("expected record untouched, got:\n%s", got)
	}
}

func TestMigrateCommandDryRun(t *testing.T) {
	dir := writeTechniques(t, map[string]string{"a.json": v1Technique})

	out, err := execute(t, "migrate", "--dir", dir, "--dry-run")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "Would transform: "+filepath.Join(dir, "a.json")) {
		t.Errorf("expected dry-run line, got:\n%s", out)
	}
	if got := readTechnique(t, dir, "a.json"); got != v1Technique {
		t.Error("expected dry run to leave the file untouched")
	}
}

func TestMigrateCommandDeclined(t *testing.T) {
	dir := writeTechniques(t, map[string]string{"a.json": v1Technique})

	var asked string
	orig := confirmFunc
	confirmFunc = func(title string) (bool, error) {
		asked = title
		return false, nil
	}
	defer func() { confirmFunc = orig }()

	out, err := execute(t, "migrate", "--dir", dir)
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(asked, "Migrate 1 technique files in "+dir) {
		t.Errorf("unexpected confirmation title %q", asked)
	}
	if !strings.Contains(out, "Aborted") {
		t.Errorf("expected abort message, got:\n%s", out)
	}
	if got := readTechnique(t, dir, "a.json"); got != v1Technique {
		t.Error("expected declined run to leave the file untouched")
	}
}

func TestMigrateCommandLookupAndExclude(t *testing.T) {
	dir := writeTechniques(t, map[string]string{
		"a.json":                            strings.Replace(v1Technique, "Alfred Haase", "Christian Tissier", 1),
		"katate-dori-kaiten-nage-soto.json": v1Technique,
	})
	lookupPath := filepath.Join(t.TempDir(), "lookup.yaml")
	if err := os.WriteFile(lookupPath, []byte("trainers:\n  - match: Tissier\n    id: christian-tissier\n"), 0600); err != nil {
		t.Fatalf("failed to write lookup: %v", err)
	}

	_, err := execute(t, "migrate", "--dir", dir, "--yes", "--lookup", lookupPath,
		"--exclude", "katate-dori-kaiten-nage-soto.json")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	want := strings.Replace(v2Technique, `"trainerId": "alfred-haase"`, `"trainerId": "christian-tissier"`, 1)
	if diff := cmp.Diff(want, readTechnique(t, dir, "a.json")); diff != "" {
		t.Errorf("migrated record mismatch (-want +got):\n%s", diff)
	}
	if got := readTechnique(t, dir, "katate-dori-kaiten-nage-soto.json"); got != v1Technique {
		t.Error("expected excluded file to be untouched")
	}
}

func TestBackfillCommand(t *testing.T) {
	complete := `{"versions":[{"id":"v","keyPoints":{"en":[],"de":[]},"commonMistakes":{"en":[],"de":[]},"context":{"en":"x","de":"y"}}]}`
	dir := writeTechniques(t, map[string]string{
		"a.json": v2Technique,
		"b.json": complete,
	})

	configPath := filepath.Join(t.TempDir(), "techmig.toml")
	if err := os.WriteFile(configPath, []byte("dir = \""+dir+"\"\nyes = true\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, err := execute(t, "backfill", "--config", configPath)
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if !strings.Contains(out, "Fields added: "+filepath.Join(dir, "a.json")) {
		t.Errorf("expected fields-added line, got:\n%s", out)
	}
	if !strings.Contains(out, "No fields needed: "+filepath.Join(dir, "b.json")) {
		t.Errorf("expected no-fields line, got:\n%s", out)
	}

	got := readTechnique(t, dir, "a.json")
	want := strings.Replace(v2Technique, `      "media": []
`, `      "media": [],
      "keyPoints": {
        "en": [],
        "de": []
      },
      "commonMistakes": {
        "en": [],
        "de": []
      },
      "context": {
        "en": "",
        "de": ""
      }
`, 1)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backfilled record mismatch (-want +got):\n%s", diff)
	}
	if got := readTechnique(t, dir, "b.json"); got != complete {
		t.Error("expected complete record to be untouched")
	}
}

func TestStatusCommandJSON(t *testing.T) {
	dir := writeTechniques(t, map[string]string{
		"a.json": v1Technique,
		"b.json": v2Technique,
	})

	out, err := execute(t, "status", "--dir", dir, "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var got []fileStatus
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}

	want := []fileStatus{
		{Path: filepath.Join(dir, "a.json"), Schema: "v1", NeedsMigration: true, NeedsBackfill: true},
		{Path: filepath.Join(dir, "b.json"), Schema: "v2", NeedsBackfill: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusCommandInvalid(t *testing.T) {
	dir := writeTechniques(t, map[string]string{"a.json": "not json"})

	out, err := execute(t, "status", "--dir", dir)
	if err == nil {
		t.Fatal("expected error for invalid file")
	}
	if !strings.Contains(out, "Invalid: 1") {
		t.Errorf("expected invalid count, got:\n%s", out)
	}
}

func TestNoColorFlag(t *testing.T) {
	dir := writeTechniques(t, map[string]string{"a.json": v2Technique})

	lipgloss.SetColorProfile(termenv.TrueColor)
	defer ui.DisableColor()

	out, err := execute(t, "migrate", "--dir", dir, "--yes", "--no-color")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no escape sequences with --no-color, got %q", out)
	}
	if !strings.Contains(out, "Summary: 0 changed, 1 unchanged, 0 failed") {
		t.Errorf("expected plain summary, got:\n%s", out)
	}
}

func TestMissingDir(t *testing.T) {
	_, err := execute(t, "migrate", "--yes")
	if !errors.Is(err, config.ErrNoDir) {
		t.Errorf("expected ErrNoDir, got %v", err)
	}
}

func TestNonexistentDir(t *testing.T) {
	_, err := execute(t, "backfill", "--dir", filepath.Join(t.TempDir(), "missing"), "--yes")
	if err == nil {
		t.Error("expected error for nonexistent directory")
	}
}
