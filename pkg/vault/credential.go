package vault

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// CredentialKind is the closed set of credential variants. Every kind
// carries its own field schema and connection-string formatter; adding a
// kind means extending the switches in this file and nothing else.
type CredentialKind string

const (
	CredentialSSH      CredentialKind = "ssh"
	CredentialPostgres CredentialKind = "postgres"
	CredentialMySQL    CredentialKind = "mysql"
	CredentialRedis    CredentialKind = "redis"
	CredentialAWS      CredentialKind = "aws"
	CredentialAPIKey   CredentialKind = "api_key"
)

// Credential validation errors.
var (
	ErrCredentialKindUnknown  = errors.New("vault: unknown credential kind")
	ErrCredentialFieldMissing = errors.New("vault: credential missing required field")
	ErrCredentialFieldUnknown = errors.New("vault: credential field not in schema")
)

// Credential is one credential owned by a server record. It lives only
// inside the server's encrypted blob and has no identity outside it.
type Credential struct {
	ID     string            `json:"id"`
	Kind   CredentialKind    `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// Kinds returns every credential kind, in display order.
func Kinds() []CredentialKind {
	return []CredentialKind{
		CredentialSSH,
		CredentialPostgres,
		CredentialMySQL,
		CredentialRedis,
		CredentialAWS,
		CredentialAPIKey,
	}
}

// credentialSchema describes one kind: the required fields and the
// optional ones, in display order.
type credentialSchema struct {
	required []string
	optional []string
}

func schemaFor(kind CredentialKind) (credentialSchema, bool) {
	switch kind {
	case CredentialSSH:
		return credentialSchema{
			required: []string{"username"},
			optional: []string{"password", "private_key", "passphrase"},
		}, true
	case CredentialPostgres, CredentialMySQL:
		return credentialSchema{
			required: []string{"username", "password"},
			optional: []string{"database"},
		}, true
	case CredentialRedis:
		return credentialSchema{
			required: []string{"password"},
			optional: []string{"username"},
		}, true
	case CredentialAWS:
		return credentialSchema{
			required: []string{"access_key_id", "secret_access_key"},
			optional: []string{"region", "session_token"},
		}, true
	case CredentialAPIKey:
		return credentialSchema{
			required: []string{"key"},
			optional: []string{"header"},
		}, true
	}
	return credentialSchema{}, false
}

// FieldSchema returns the ordered field names for a kind: required fields
// first, then optional ones. The second return is false for unknown kinds.
func FieldSchema(kind CredentialKind) ([]string, bool) {
	s, ok := schemaFor(kind)
	if !ok {
		return nil, false
	}
	return append(append([]string(nil), s.required...), s.optional...), true
}

// RequiredFields returns just the required field names for a kind. The
// second return is false for unknown kinds.
func RequiredFields(kind CredentialKind) ([]string, bool) {
	s, ok := schemaFor(kind)
	if !ok {
		return nil, false
	}
	return append([]string(nil), s.required...), true
}

// Validate checks the credential against its kind's schema: the kind must
// be known, every required field present and non-empty, and no field
// outside the schema.
func (c Credential) Validate() error {
	s, ok := schemaFor(c.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrCredentialKindUnknown, c.Kind)
	}

	for _, name := range s.required {
		if c.Fields[name] == "" {
			return fmt.Errorf("%w: %s requires %q", ErrCredentialFieldMissing, c.Kind, name)
		}
	}

	allowed := make(map[string]bool, len(s.required)+len(s.optional))
	for _, name := range s.required {
		allowed[name] = true
	}
	for _, name := range s.optional {
		allowed[name] = true
	}
	for name := range c.Fields {
		if !allowed[name] {
			return fmt.Errorf("%w: %q not valid for %s", ErrCredentialFieldUnknown, name, c.Kind)
		}
	}
	return nil
}

// ConnectionString formats a ready-to-use connection string for the
// credential against the given host and port. Pure: no I/O, no secrets
// logged. Unknown kinds return the empty string; Validate catches them
// before a credential is ever stored.
func (c Credential) ConnectionString(host string, port int) string {
	switch c.Kind {
	case CredentialSSH:
		if port > 0 && port != 22 {
			return fmt.Sprintf("ssh %s@%s -p %d", c.Fields["username"], host, port)
		}
		return fmt.Sprintf("ssh %s@%s", c.Fields["username"], host)

	case CredentialPostgres:
		return dbURL("postgresql", c.Fields, host, port, 5432)

	case CredentialMySQL:
		return dbURL("mysql", c.Fields, host, port, 3306)

	case CredentialRedis:
		u := &url.URL{Scheme: "redis", Host: hostPort(host, port, 6379)}
		if pw := c.Fields["password"]; pw != "" {
			u.User = url.UserPassword(c.Fields["username"], pw)
		}
		return u.String()

	case CredentialAWS:
		var b strings.Builder
		fmt.Fprintf(&b, "AWS_ACCESS_KEY_ID=%s AWS_SECRET_ACCESS_KEY=%s",
			c.Fields["access_key_id"], c.Fields["secret_access_key"])
		if region := c.Fields["region"]; region != "" {
			fmt.Fprintf(&b, " AWS_REGION=%s", region)
		}
		return b.String()

	case CredentialAPIKey:
		header := c.Fields["header"]
		if header == "" {
			header = "Authorization: Bearer"
		}
		return fmt.Sprintf("%s %s", header, c.Fields["key"])
	}
	return ""
}

func dbURL(scheme string, fields map[string]string, host string, port, defaultPort int) string {
	u := &url.URL{
		Scheme: scheme,
		User:   url.UserPassword(fields["username"], fields["password"]),
		Host:   hostPort(host, port, defaultPort),
	}
	if db := fields["database"]; db != "" {
		u.Path = "/" + db
	}
	return u.String()
}

func hostPort(host string, port, defaultPort int) string {
	if port <= 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
