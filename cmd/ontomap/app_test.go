package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/ontomap/config"
	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/ontology"
	mappingapi "github.com/c360studio/ontomap/processor/mapping-api"
	"github.com/c360studio/ontomap/source"
)

const testTTL = `@prefix ex: <http://ex.org/> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .

ex:Person a owl:Class ; rdfs:label "Person" .
ex:email a owl:DatatypeProperty ; rdfs:label "Email" ; rdfs:domain ex:Person .
ex:age a owl:DatatypeProperty ; rdfs:label "Age" ; rdfs:domain ex:Person .
`

const testCSV = "email,age\na@b.com,31\nc@d.com,45\n"

// writeFixtures lays out an ontology, a CSV file, a skill and a config in a temp dir.
func writeFixtures(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()

	files := map[string]string{
		"ontology.ttl":          testTTL,
		"person.csv":            testCSV,
		"skills/r2rml/SKILL.md": "---\nname: r2rml\ndescription: Map table fields to R2RML\n---\nBe strict.",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Audit.File = filepath.Join(dir, "logs", "match_reason.log")
	cfg.Audit.SQLite = filepath.Join(dir, "logs", "decisions.db")
	cfg.Skills.Root = filepath.Join(dir, "skills")
	cfg.Export.OutputDir = filepath.Join(dir, "abox")
	configPath = filepath.Join(dir, "ontomap.yaml")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return dir, configPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewApp_HeuristicMatchWritesAudit(t *testing.T) {
	dir, configPath := writeFixtures(t)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	app, err := NewApp(cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	if n := app.sink.Len(); n != 2 {
		t.Errorf("audit sinks = %d, want 2 (file, sqlite)", n)
	}
	if !strings.Contains(app.SkillDoc(""), "Be strict.") {
		t.Errorf("skill doc = %q", app.SkillDoc(""))
	}
	if app.SkillDoc("missing") != "" {
		t.Error("missing skill should yield an empty document")
	}

	tbox, err := ontology.Parse([]byte(testTTL), "ontology.ttl")
	if err != nil {
		t.Fatal(err)
	}
	tables, err := app.sources.ParseFiles([]source.File{{Name: "person.csv", Content: []byte(testCSV)}})
	if err != nil {
		t.Fatal(err)
	}

	results, err := app.engine.MatchProperties(context.Background(), tbox.Properties, tables, mapping.ModeHeuristic, 0.5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "match_reason.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("audit lines = %d, want 2", lines)
	}
}

func TestNewApp_LLMWithoutKeyIsConfigurationError(t *testing.T) {
	t.Setenv("QWEN_API_KEY", "")
	_, configPath := writeFixtures(t)
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Model.APIKeyEnv = "ONTOMAP_TEST_UNSET_KEY"
	cfg.Model.Endpoint = "http://127.0.0.1:1/v1"

	app, err := NewApp(cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	tbox, _ := ontology.Parse([]byte(testTTL), "ontology.ttl")
	_, err = app.engine.MatchProperties(context.Background(), tbox.Properties, nil, mapping.ModeLLM, 0.5)
	if !mapping.IsConfigurationError(err) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "ontomap version ") {
		t.Errorf("output = %q", out)
	}
}

func TestCLI_ParseTBox(t *testing.T) {
	dir, configPath := writeFixtures(t)

	out, err := runCLI(t, "parse-tbox", filepath.Join(dir, "ontology.ttl"), "--config", configPath)
	if err != nil {
		t.Fatal(err)
	}
	var tbox ontology.TBox
	if err := json.Unmarshal([]byte(out), &tbox); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(tbox.Properties) != 2 {
		t.Errorf("properties = %d, want 2", len(tbox.Properties))
	}
	if tbox.Turtle != "" {
		t.Error("turtle should be omitted from CLI output")
	}
}

func TestCLI_ParseData(t *testing.T) {
	dir, configPath := writeFixtures(t)

	out, err := runCLI(t, "parse-data", filepath.Join(dir, "person.csv"), "--config", configPath)
	if err != nil {
		t.Fatal(err)
	}
	var resp mappingapi.ParseDataResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(resp.Tables) != 1 || resp.Tables[0].Name != "person" {
		t.Fatalf("tables = %+v", resp.Tables)
	}
	if resp.Tables[0].Rows != nil {
		t.Error("rows should be omitted without --rows")
	}
}

func TestCLI_MatchThenExport(t *testing.T) {
	dir, configPath := writeFixtures(t)
	matchesPath := filepath.Join(dir, "out", "matches.json")

	_, err := runCLI(t, "match",
		"--config", configPath,
		"--tbox", filepath.Join(dir, "ontology.ttl"),
		"--data", filepath.Join(dir, "person.csv"),
		"-o", matchesPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	data, err := os.ReadFile(matchesPath)
	if err != nil {
		t.Fatal(err)
	}
	var resp mappingapi.MatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	accepted := 0
	for _, m := range resp.Matches {
		if m.Accepted() {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("accepted = %d, want 2: %+v", accepted, resp.Matches)
	}

	out, err := runCLI(t, "abox",
		"--config", configPath,
		"--data", filepath.Join(dir, "person.csv"),
		"--mapping", matchesPath,
		"--format", "ntriples",
		"--base-iri", "http://data.ex.org/")
	if err != nil {
		t.Fatalf("abox: %v", err)
	}
	if !strings.Contains(out, "<http://data.ex.org/row/2> <http://ex.org/email>") {
		t.Errorf("abox output = %q", out)
	}

	out, err = runCLI(t, "r2rml", "--config", configPath, "--mapping", matchesPath)
	if err != nil {
		t.Fatalf("r2rml: %v", err)
	}
	if !strings.Contains(out, `rr:tableName "person"`) {
		t.Errorf("r2rml output = %q", out)
	}
}

func TestCLI_Skills(t *testing.T) {
	_, configPath := writeFixtures(t)

	out, err := runCLI(t, "skills", "--config", configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "* r2rml") || !strings.Contains(out, "Map table fields to R2RML") {
		t.Errorf("skills output = %q", out)
	}
}

func TestDecodeMapping(t *testing.T) {
	items, err := decodeMapping([]byte(`[{"property_iri": "p", "field": "f"}]`))
	if err != nil || len(items) != 1 || items[0].Field != "f" {
		t.Fatalf("list: %v %+v", err, items)
	}

	items, err = decodeMapping([]byte(`{"matches": [
		{"property_iri": "p", "table_name": "t", "field": "f", "outcome": "accepted"},
		{"property_iri": "q", "table_name": null, "field": null, "outcome": "no_candidate"}
	]}`))
	if err != nil || len(items) != 1 || items[0].TableName != "t" {
		t.Fatalf("matches: %v %+v", err, items)
	}

	if _, err := decodeMapping([]byte(`{"other": 1}`)); err == nil {
		t.Error("expected error for unrecognised document")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG").String() != "DEBUG" || parseLevel("bogus").String() != "INFO" {
		t.Error("unexpected level mapping")
	}
}
