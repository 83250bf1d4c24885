package main

import (
	"flag"
	"testing"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv("FACETS_TEST_STRING", "value")
	t.Setenv("FACETS_TEST_INT", "42")
	t.Setenv("FACETS_TEST_BAD_INT", "forty")
	t.Setenv("FACETS_TEST_BOOL", "true")

	if got := getenvDefault("FACETS_TEST_STRING", "def"); got != "value" {
		t.Fatalf("getenvDefault() = %q", got)
	}
	if got := getenvDefault("FACETS_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("getenvDefault() = %q", got)
	}
	if got := getenvDefaultInt("FACETS_TEST_INT", 1); got != 42 {
		t.Fatalf("getenvDefaultInt() = %d", got)
	}
	if got := getenvDefaultInt("FACETS_TEST_BAD_INT", 1); got != 1 {
		t.Fatalf("getenvDefaultInt() = %d", got)
	}
	if !getenvDefaultBool("FACETS_TEST_BOOL", false) {
		t.Fatal("getenvDefaultBool() = false")
	}
}

func TestBindConfigFlags(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("FIELDS_TABLE", "custom_fields")

	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	config := bindConfigFlags(flags)
	if err := flags.Parse([]string{"-db-port", "6543", "-sqlite", "/tmp/facets.db"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if config.Database.Host != "db.internal" || config.Database.Port != 6543 {
		t.Fatalf("unexpected database config %+v", config.Database)
	}
	if config.Database.SQLitePath != "/tmp/facets.db" {
		t.Fatalf("SQLitePath = %q", config.Database.SQLitePath)
	}
	if config.Database.TableNames.Fields != "custom_fields" {
		t.Fatalf("Fields table = %q", config.Database.TableNames.Fields)
	}
}

func TestCommandsAcceptHelp(t *testing.T) {
	commands := map[string]func([]string) error{
		"init-db":           runInitDB,
		"seed":              runSeed,
		"describe-schema":   runDescribeSchema,
		"generate-seed":     runGenerateSeed,
		"import-attributes": runImportAttributes,
		"export-attributes": runExportAttributes,
	}
	for name, run := range commands {
		if err := run([]string{"-h"}); err != nil {
			t.Fatalf("%s -h returned %v", name, err)
		}
	}
}

func TestCommandsRequireArguments(t *testing.T) {
	if err := runGenerateSeed(nil); err == nil {
		t.Fatal("generate-seed without -schema-file should fail")
	}
	if err := runImportAttributes([]string{"-sqlite", t.TempDir() + "/x.db"}); err == nil {
		t.Fatal("import-attributes without -file should fail")
	}
}
