// Package importer parses external server inventories into vault records.
// The generic CSV format covers the common export shape of inventory
// spreadsheets and other connection managers: one server per row with an
// optional single credential.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/offgridhq/offgrid/pkg/vault"
)

// ErrNoHeader indicates CSV input without a recognizable header row.
var ErrNoHeader = errors.New("importer: missing or unrecognized header row")

// Recognized header columns. Matching is case-insensitive; only "name"
// and "host" are required.
const (
	colName     = "name"
	colHost     = "host"
	colPort     = "port"
	colFolder   = "folder"
	colKind     = "kind"
	colUsername = "username"
	colPassword = "password"
	colNotes    = "notes"
)

// ImportedServer is one parsed row: the server details plus the folder
// name it was filed under in the source, if any.
type ImportedServer struct {
	Details vault.ServerDetails
	Folder  string
}

// SkippedRow records a row the parser rejected, with the reason.
type SkippedRow struct {
	Line   int
	Reason string
}

// Result is the outcome of a parse: the usable servers, plus non-fatal
// warnings and the rows that were skipped.
type Result struct {
	Servers  []ImportedServer
	Warnings []string
	Skipped  []SkippedRow
}

// ParseCSV reads a generic server-inventory CSV. Rows missing a name or
// host are skipped rather than failing the whole import; unknown
// credential kinds are skipped with a warning because a wrong kind would
// fail validation at insert time anyway.
func ParseCSV(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colName]; !ok {
		return nil, ErrNoHeader
	}
	if _, ok := cols[colHost]; !ok {
		return nil, ErrNoHeader
	}

	result := &Result{}
	line := 1
	for {
		line++
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Line: line, Reason: err.Error()})
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		name, host := field(colName), field(colHost)
		if name == "" || host == "" {
			result.Skipped = append(result.Skipped, SkippedRow{Line: line, Reason: "missing name or host"})
			continue
		}

		details := vault.ServerDetails{
			Name:  name,
			Host:  host,
			Notes: field(colNotes),
		}
		if p := field(colPort); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil || port <= 0 || port > 65535 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("line %d: invalid port %q, left unset", line, p))
			} else {
				details.Port = port
			}
		}

		if cred, warn, ok := rowCredential(field); ok {
			details.Credentials = append(details.Credentials, cred)
			if warn != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %s", line, warn))
			}
		} else if warn != "" {
			result.Skipped = append(result.Skipped, SkippedRow{Line: line, Reason: warn})
			continue
		}

		result.Servers = append(result.Servers, ImportedServer{
			Details: details,
			Folder:  field(colFolder),
		})
	}
	return result, nil
}

// rowCredential assembles the row's optional credential. Returns ok=false
// with an empty warning when the row simply has no credential columns.
func rowCredential(field func(string) string) (vault.Credential, string, bool) {
	username, password := field(colUsername), field(colPassword)
	kindValue := strings.ToLower(field(colKind))

	if username == "" && password == "" {
		return vault.Credential{}, "", false
	}

	kind := vault.CredentialSSH
	warn := ""
	if kindValue != "" {
		known := false
		for _, k := range vault.Kinds() {
			if string(k) == kindValue {
				kind = k
				known = true
				break
			}
		}
		if !known {
			return vault.Credential{}, fmt.Sprintf("unknown credential kind %q", kindValue), false
		}
	} else {
		warn = "no credential kind given, assuming ssh"
	}

	fields := map[string]string{}
	if username != "" {
		fields["username"] = username
	}
	if password != "" {
		fields["password"] = password
	}
	cred := vault.Credential{Kind: kind, Fields: fields}
	if err := cred.Validate(); err != nil {
		return vault.Credential{}, err.Error(), false
	}
	return cred, warn, true
}

// Import adds every parsed server to the unlocked vault, creating folders
// named in the source as needed. Returns the created records.
func Import(v *vault.Vault, result *Result) ([]*vault.ServerRecord, error) {
	folders := map[string]string{}
	existing, err := v.ListFolders()
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		folders[f.Name] = f.Record.ID
	}

	var records []*vault.ServerRecord
	for _, srv := range result.Servers {
		for i := range srv.Details.Credentials {
			if srv.Details.Credentials[i].ID == "" {
				srv.Details.Credentials[i].ID = uuid.NewString()
			}
		}

		var folderID *string
		if srv.Folder != "" {
			id, ok := folders[srv.Folder]
			if !ok {
				rec, err := v.AddFolder(srv.Folder, nil)
				if err != nil {
					return records, err
				}
				id = rec.ID
				folders[srv.Folder] = id
			}
			folderID = &id
		}

		rec, err := v.AddServer(srv.Details, folderID)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}
