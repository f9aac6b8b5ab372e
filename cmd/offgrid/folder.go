package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/audit"
)

var folderAddParent string

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderRmCmd)

	folderAddCmd.Flags().StringVar(&folderAddParent, "parent", "", "Create under this parent folder")
}

var folderAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		var parentID *string
		if folderAddParent != "" {
			id, err := folderIDByName(folderAddParent)
			if err != nil {
				return err
			}
			parentID = &id
		}

		if _, err := v.AddFolder(args[0], parentID); err != nil {
			logActivity(activity.Failure(audit.OpFolderAdd, args[0], err))
			return err
		}
		logActivity(activity.Success(audit.OpFolderAdd, args[0]))
		fmt.Printf("Folder %q created\n", args[0])
		return nil
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders with their server counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		folders, err := v.ListFolders()
		if err != nil {
			return err
		}
		if len(folders) == 0 {
			fmt.Println("No folders.")
			return nil
		}

		servers, err := v.ListServers()
		if err != nil {
			return err
		}
		counts := make(map[string]int)
		for _, s := range servers {
			if s.Record.FolderID != nil {
				counts[*s.Record.FolderID]++
			}
		}

		names := make(map[string]string, len(folders))
		for _, f := range folders {
			names[f.Record.ID] = f.Name
		}
		for _, f := range folders {
			label := f.Name
			if f.Record.ParentID != nil {
				label = names[*f.Record.ParentID] + "/" + f.Name
			}
			fmt.Printf("%-32s %d servers\n", label, counts[f.Record.ID])
		}
		return nil
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a folder, re-filing its contents under its parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		id, err := folderIDByName(args[0])
		if err != nil {
			return err
		}
		if err := v.DeleteFolder(id); err != nil {
			logActivity(activity.Failure(audit.OpFolderDelete, args[0], err))
			return err
		}
		logActivity(activity.Success(audit.OpFolderDelete, args[0]))
		fmt.Printf("Folder %q deleted\n", args[0])
		return nil
	},
}
