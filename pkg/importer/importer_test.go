package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/offgridhq/offgrid/pkg/vault"
)

const sampleCSV = `name,host,port,folder,kind,username,password,notes
web-1,10.0.0.1,22,production,ssh,deploy,,front door
db-1,10.0.0.2,5432,production,postgres,app,hunter2,
cache-1,10.0.0.3,,,redis,,redispass,
plain,10.0.0.4,,,,,,"no credential at all"
`

func TestParseCSV(t *testing.T) {
	result, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(result.Servers) != 4 {
		t.Fatalf("got %d servers, want 4", len(result.Servers))
	}
	if len(result.Skipped) != 0 {
		t.Errorf("unexpected skips: %+v", result.Skipped)
	}

	web := result.Servers[0]
	if web.Details.Name != "web-1" || web.Details.Port != 22 || web.Folder != "production" {
		t.Errorf("unexpected first server: %+v", web)
	}
	if len(web.Details.Credentials) != 1 || web.Details.Credentials[0].Kind != vault.CredentialSSH {
		t.Errorf("unexpected ssh credential: %+v", web.Details.Credentials)
	}

	db := result.Servers[1]
	if db.Details.Credentials[0].Kind != vault.CredentialPostgres {
		t.Errorf("kind = %q, want postgres", db.Details.Credentials[0].Kind)
	}
	if db.Details.Credentials[0].Fields["password"] != "hunter2" {
		t.Error("postgres password lost in parse")
	}

	plain := result.Servers[3]
	if len(plain.Details.Credentials) != 0 {
		t.Errorf("credential-less row grew credentials: %+v", plain.Details.Credentials)
	}
	if plain.Details.Notes != "no credential at all" {
		t.Errorf("notes = %q", plain.Details.Notes)
	}
}

func TestParseCSVSkipsBadRows(t *testing.T) {
	input := `name,host,username,password,kind
,10.0.0.1,u,p,ssh
named,,u,p,ssh
bad-kind,10.0.0.2,u,p,teleport
good,10.0.0.3,deploy,,ssh
`
	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(result.Servers) != 1 || result.Servers[0].Details.Name != "good" {
		t.Errorf("unexpected servers: %+v", result.Servers)
	}
	if len(result.Skipped) != 3 {
		t.Errorf("got %d skipped rows, want 3: %+v", len(result.Skipped), result.Skipped)
	}
}

func TestParseCSVInvalidPortIsWarning(t *testing.T) {
	input := "name,host,port\nweird,10.0.0.1,eighty\n"
	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(result.Servers) != 1 || result.Servers[0].Details.Port != 0 {
		t.Errorf("unexpected servers: %+v", result.Servers)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(result.Warnings))
	}
}

func TestParseCSVMissingHeader(t *testing.T) {
	for _, input := range []string{"", "label,address\nx,y\n"} {
		if _, err := ParseCSV(strings.NewReader(input)); !errors.Is(err, ErrNoHeader) {
			t.Errorf("input %q: got %v, want ErrNoHeader", input, err)
		}
	}
}

func TestImportIntoVault(t *testing.T) {
	v, err := vault.Open(t.TempDir(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer v.Close()
	if err := v.Create([]byte("import-test-pass"), vault.StorageEmbedded); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	records, err := Import(v, result)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("imported %d records, want 4", len(records))
	}

	// Both production servers share one created folder.
	folders, err := v.ListFolders()
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	if len(folders) != 1 || folders[0].Name != "production" {
		t.Errorf("unexpected folders: %+v", folders)
	}

	servers, err := v.ListServers()
	if err != nil {
		t.Fatalf("ListServers failed: %v", err)
	}
	inProduction := 0
	for _, s := range servers {
		if s.Record.FolderID != nil && *s.Record.FolderID == folders[0].Record.ID {
			inProduction++
		}
	}
	if inProduction != 2 {
		t.Errorf("%d servers filed under production, want 2", inProduction)
	}
}
