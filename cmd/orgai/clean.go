package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youruser/orgai/internal/session"
)

func newCleanCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "clean [dir]",
		Short: "Delete leftover shadow files under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return clean(dir, dryRun)
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list shadow files without deleting them")
	return cmd
}

func clean(dir string, dryRun bool) error {
	var removed int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(d.Name(), session.ShadowPrefix) {
			return nil
		}
		if dryRun {
			fmt.Println(path)
			removed++
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		log.Info("Removed shadow file %s", path)
		fmt.Println(path)
		removed++
		return nil
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		fmt.Fprintln(os.Stderr, "No shadow files found.")
	}
	return nil
}
