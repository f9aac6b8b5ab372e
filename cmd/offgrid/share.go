package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/audit"
	"github.com/offgridhq/offgrid/pkg/share"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var (
	shareTTL      time.Duration
	shareMaxViews int
	shareNoPass   bool
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share server credentials as a sealed string",
	Long: `Shares are self-contained: the whole record travels inside one
base64 string, optionally protected by a share password. There is no
server; expiry and view limits are enforced by the opening client.`,
}

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.AddCommand(shareCreateCmd)
	shareCmd.AddCommand(shareOpenCmd)

	shareCreateCmd.Flags().DurationVar(&shareTTL, "ttl", 24*time.Hour, "How long the share stays valid (0 = forever)")
	shareCreateCmd.Flags().IntVar(&shareMaxViews, "max-views", 0, "View limit (0 = unlimited)")
	shareCreateCmd.Flags().BoolVar(&shareNoPass, "no-password", false, "Create the share without a password")
}

var shareCreateCmd = &cobra.Command{
	Use:   "create <server>",
	Short: "Seal a server record into a share string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		entry, err := serverByName(args[0])
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to serialize server: %w", err)
		}

		var password []byte
		if !shareNoPass {
			password, err = promptPassword("Share password: ")
			if err != nil {
				return err
			}
		}

		s, err := share.Build(data, password, share.Options{TTL: shareTTL, MaxViews: shareMaxViews})
		if err != nil {
			logActivity(activity.Failure(audit.OpShareCreate, args[0], err))
			return err
		}
		logActivity(activity.Success(audit.OpShareCreate, args[0]))

		fmt.Println(s)
		return nil
	},
}

var shareOpenCmd = &cobra.Command{
	Use:   "open <share-string>",
	Short: "Open a share string and print its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protected, err := share.Inspect(args[0])
		if err != nil {
			return err
		}

		var password []byte
		if protected {
			password, err = promptPassword("Share password: ")
			if err != nil {
				return err
			}
		}

		opened, reissued, err := share.Open(args[0], password)
		if err != nil {
			logActivity(activity.Failure(audit.OpShareOpen, "", err))
			return err
		}
		logActivity(activity.Success(audit.OpShareOpen, ""))

		var details vault.ServerDetails
		if err := json.Unmarshal(opened.Data, &details); err != nil {
			return fmt.Errorf("share does not contain a server record: %w", err)
		}

		fmt.Printf("Name: %s\n", details.Name)
		fmt.Printf("Host: %s", details.Host)
		if details.Port > 0 {
			fmt.Printf(":%d", details.Port)
		}
		fmt.Println()
		for _, cred := range details.Credentials {
			fmt.Printf("%s: %s\n", cred.Kind, cred.ConnectionString(details.Host, details.Port))
		}
		if opened.MaxViews > 0 {
			fmt.Printf("Views: %d of %d", opened.ViewCount, opened.MaxViews)
			fmt.Println()
			fmt.Println("Pass this updated string on instead of the original:")
			fmt.Println(reissued)
		}
		if opened.ExpiresAt != nil {
			fmt.Printf("Expires: %s\n", opened.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}
