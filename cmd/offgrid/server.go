package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/internal/cli"
	"github.com/offgridhq/offgrid/pkg/audit"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var (
	serverAddFolder string
	serverAddPort   int
	serverAddNotes  string
	serverAddCred   string
	serverAddFields []string

	serverGetCopy    string
	serverGetConnect bool

	serverListFolder string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage server records",
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverGetCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverRmCmd)
	serverCmd.AddCommand(serverMoveCmd)

	serverAddCmd.Flags().StringVar(&serverAddFolder, "folder", "", "File the server under this folder")
	serverAddCmd.Flags().IntVar(&serverAddPort, "port", 0, "Server port")
	serverAddCmd.Flags().StringVar(&serverAddNotes, "notes", "", "Free-form notes")
	serverAddCmd.Flags().StringVar(&serverAddCred, "credential", "",
		"Credential kind to attach (ssh, postgres, mysql, redis, aws, api_key)")
	serverAddCmd.Flags().StringArrayVar(&serverAddFields, "field", nil,
		"Credential field (name=value, can be repeated)")

	serverGetCmd.Flags().StringVar(&serverGetCopy, "copy", "",
		"Copy this credential field to the clipboard instead of printing details")
	serverGetCmd.Flags().BoolVar(&serverGetConnect, "connect", false,
		"Print ready-to-use connection strings")

	serverListCmd.Flags().StringVar(&serverListFolder, "folder", "", "Only servers in this folder")
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name> <host>",
	Short: "Add a server record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		details := vault.ServerDetails{
			Name:  args[0],
			Host:  args[1],
			Port:  serverAddPort,
			Notes: serverAddNotes,
		}
		if serverAddCred != "" {
			cred, err := credentialFromFlags(serverAddCred, serverAddFields)
			if err != nil {
				return err
			}
			details.Credentials = append(details.Credentials, cred)
		}

		var folderID *string
		if serverAddFolder != "" {
			id, err := folderIDByName(serverAddFolder)
			if err != nil {
				return err
			}
			folderID = &id
		}

		rec, err := v.AddServer(details, folderID)
		if err != nil {
			logActivity(activity.Failure(audit.OpServerAdd, details.Name, err))
			return err
		}
		logActivity(activity.Success(audit.OpServerAdd, details.Name))
		fmt.Printf("Server %q added (%s)\n", details.Name, rec.ID)
		return nil
	},
}

var serverGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a server record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		entry, err := serverByName(args[0])
		if err != nil {
			logActivity(activity.Failure(audit.OpServerGet, args[0], err))
			return err
		}
		logActivity(activity.Success(audit.OpServerGet, args[0]))

		if serverGetCopy != "" {
			return copyCredentialField(entry, serverGetCopy)
		}

		d := entry.Details
		fmt.Printf("Name:   %s\n", d.Name)
		fmt.Printf("Host:   %s", d.Host)
		if d.Port > 0 {
			fmt.Printf(":%d", d.Port)
		}
		fmt.Println()
		fmt.Printf("Health: %s\n", entry.Record.HealthStatus)
		if d.Notes != "" {
			fmt.Printf("Notes:  %s\n", d.Notes)
		}
		for _, cred := range d.Credentials {
			if serverGetConnect {
				fmt.Printf("%-9s %s\n", cred.Kind+":", cred.ConnectionString(d.Host, d.Port))
			} else {
				fields, _ := vault.FieldSchema(cred.Kind)
				fmt.Printf("%-9s fields: %s\n", cred.Kind+":", strings.Join(fields, ", "))
			}
		}
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List servers, optionally filtered by a glob pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		entries, err := v.ListServers()
		if err != nil {
			return err
		}

		if serverListFolder != "" {
			id, err := folderIDByName(serverListFolder)
			if err != nil {
				return err
			}
			filtered := entries[:0]
			for _, e := range entries {
				if e.Record.FolderID != nil && *e.Record.FolderID == id {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if len(args) == 1 {
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Details.Name
			}
			matched, err := cli.ExpandPattern(args[0], names)
			if err != nil {
				return err
			}
			keep := make(map[string]bool, len(matched))
			for _, name := range matched {
				keep[name] = true
			}
			filtered := entries[:0]
			for _, e := range entries {
				if keep[e.Details.Name] {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if len(entries) == 0 {
			fmt.Println("No servers.")
			return nil
		}
		for _, e := range entries {
			host := e.Details.Host
			if e.Details.Port > 0 {
				host += ":" + strconv.Itoa(e.Details.Port)
			}
			fmt.Printf("%-24s %-28s %s\n", e.Details.Name, host, e.Record.HealthStatus)
		}
		return nil
	},
}

var serverRmCmd = &cobra.Command{
	Use:   "rm <pattern>...",
	Short: "Delete servers matching names or glob patterns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		entries, err := v.ListServers()
		if err != nil {
			return err
		}
		names := make([]string, len(entries))
		byName := make(map[string]string, len(entries))
		for i, e := range entries {
			names[i] = e.Details.Name
			byName[e.Details.Name] = e.Record.ID
		}

		matched, err := cli.ExpandPatterns(args, names)
		if err != nil {
			return err
		}
		for _, name := range cli.SortNames(matched) {
			if err := v.DeleteServer(byName[name]); err != nil {
				logActivity(activity.Failure(audit.OpServerDelete, name, err))
				return err
			}
			logActivity(activity.Success(audit.OpServerDelete, name))
			fmt.Printf("Deleted %q\n", name)
		}
		return nil
	},
}

var serverMoveCmd = &cobra.Command{
	Use:   "move <name> [folder]",
	Short: "Move a server into a folder, or to the root when omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		entry, err := serverByName(args[0])
		if err != nil {
			return err
		}

		var folderID *string
		if len(args) == 2 {
			id, err := folderIDByName(args[1])
			if err != nil {
				return err
			}
			folderID = &id
		}
		if err := v.MoveServer(entry.Record.ID, folderID); err != nil {
			return err
		}
		logActivity(activity.Success(audit.OpServerUpdate, args[0]))
		fmt.Printf("Moved %q\n", args[0])
		return nil
	},
}

// serverByName resolves a server by its decrypted name.
func serverByName(name string) (*vault.ServerEntry, error) {
	entries, err := v.ListServers()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Details.Name == name {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", vault.ErrServerNotFound, name)
}

// folderIDByName resolves a folder by its decrypted name.
func folderIDByName(name string) (string, error) {
	entries, err := v.ListFolders()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Record.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", vault.ErrFolderNotFound, name)
}

// credentialFromFlags assembles a credential from --credential/--field,
// prompting for required fields that were not given. Secret-looking fields
// are prompted without echo.
func credentialFromFlags(kind string, fieldFlags []string) (vault.Credential, error) {
	cred := vault.Credential{
		ID:     uuid.NewString(),
		Kind:   vault.CredentialKind(kind),
		Fields: map[string]string{},
	}

	schema, ok := vault.FieldSchema(cred.Kind)
	if !ok {
		return cred, fmt.Errorf("unknown credential kind %q", kind)
	}
	allowed := make(map[string]bool, len(schema))
	for _, name := range schema {
		allowed[name] = true
	}

	for _, flag := range fieldFlags {
		name, value, found := strings.Cut(flag, "=")
		if !found {
			return cred, fmt.Errorf("invalid --field %q, want name=value", flag)
		}
		if !allowed[name] {
			return cred, fmt.Errorf("field %q not valid for %s (fields: %s)",
				name, kind, strings.Join(schema, ", "))
		}
		cred.Fields[name] = value
	}

	// Prompt for any required field the flags did not cover.
	required, _ := vault.RequiredFields(cred.Kind)
	for _, name := range required {
		if cred.Fields[name] != "" {
			continue
		}
		var value string
		var err error
		if isSecretField(name) {
			secret, perr := promptPassword(fmt.Sprintf("%s: ", name))
			value, err = string(secret), perr
		} else {
			value, err = promptLine(fmt.Sprintf("%s: ", name))
		}
		if err != nil {
			return cred, err
		}
		cred.Fields[name] = value
	}
	return cred, cred.Validate()
}

func isSecretField(name string) bool {
	switch name {
	case "password", "passphrase", "private_key", "secret_access_key", "session_token", "key":
		return true
	}
	return false
}

// copyCredentialField finds the named field in the server's credentials
// and copies it with the configured auto-clear.
func copyCredentialField(entry *vault.ServerEntry, field string) error {
	settings, err := v.Settings()
	if err != nil {
		return err
	}
	for _, cred := range entry.Details.Credentials {
		if value, ok := cred.Fields[field]; ok && value != "" {
			copyToClipboard(value, settings)
			return nil
		}
	}
	return fmt.Errorf("no credential field %q on %q", field, entry.Details.Name)
}
