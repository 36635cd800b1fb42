package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the metadata index",
	Long: `Rebuild, export or import the metadata index, or keep it in step with
edits made to the storage tree by other programs.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the document tree",
	Args:  cobra.NoArgs,
	RunE:  runIndexRebuild,
}

var indexExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the index as JSON",
	Args:  cobra.NoArgs,
	RunE:  runIndexExport,
}

var indexImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace the index with an exported JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexImport,
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reindex files as they change on disk",
	Long: `Watch the storage tree and update the index whenever a document file is
created, edited, moved or deleted by another program. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runIndexWatch,
}

var exportOut string

func init() {
	indexExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")

	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexExportCmd)
	indexCmd.AddCommand(indexImportCmd)
	indexCmd.AddCommand(indexWatchCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	n, err := documentService.Reindex(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	cmd.Printf("Indexed %d documents.\n", n)
	return nil
}

func runIndexExport(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	data, err := documentService.ExportIndex(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to export index: %w", err)
	}

	if exportOut == "" {
		cmd.Println(string(data))
		return nil
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOut, err)
	}
	cmd.Printf("Index written to %s\n", exportOut)
	return nil
}

func runIndexImport(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := documentService.ImportIndex(cmd.Context(), data); err != nil {
		return fmt.Errorf("failed to import index: %w", err)
	}
	cmd.Printf("Index imported from %s\n", args[0])
	return nil
}

func runIndexWatch(cmd *cobra.Command, _ []string) error {
	if indexSyncFactory == nil {
		return errors.New("index watcher not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer, err := indexSyncFactory()
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", storageRoot)
	if err := syncer.Run(ctx, storageRoot); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	stats := syncer.Stats()
	cmd.Printf("Stopped. %d changes applied, %d failed.\n", stats.Applied, stats.Failed)
	return nil
}
