package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/flcm/internal/adapters/driving/cli/styles"
	"github.com/custodia-labs/flcm/internal/core/domain"
)

var ui = styles.DefaultStyles()

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage stored documents",
	Long:  `Read, query, delete, back up and restore documents in the storage tree.`,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query documents by metadata",
	Long: `Query documents by type, agent, status, tags and creation date.

Examples:
  flcm document query --type knowledge-synthesis --tag go --sort created --order desc
  flcm document query --status failed --since 2025-01-01 --json`,
	Args: cobra.NoArgs,
	RunE: runDocumentQuery,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its backups",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	Args:  cobra.NoArgs,
	RunE:  runDocumentStats,
}

var documentBackupsCmd = &cobra.Command{
	Use:   "backups [doc-id]",
	Short: "List retained prior versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentBackups,
}

var documentRestoreCmd = &cobra.Command{
	Use:   "restore [doc-id] [version]",
	Short: "Restore a prior version as the newest version",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentRestore,
}

var documentBacklinksCmd = &cobra.Command{
	Use:   "backlinks [doc-id]",
	Short: "List documents that reference a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentBacklinks,
}

var documentOpenCmd = &cobra.Command{
	Use:   "open [doc-id]",
	Short: "Open document in default application",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentOpen,
}

var (
	getRaw bool

	listType string

	queryType   string
	queryAgent  string
	queryStatus string
	queryTags   []string
	querySince  string
	queryUntil  string
	queryLimit  int
	queryOffset int
	querySort   string
	queryOrder  string
	queryJSON   bool
)

func init() {
	documentGetCmd.Flags().BoolVar(&getRaw, "raw", false, "print the stored file text")
	documentListCmd.Flags().StringVarP(&listType, "type", "t", "", "only list documents of this type")

	f := documentQueryCmd.Flags()
	f.StringVarP(&queryType, "type", "t", "", "document type")
	f.StringVar(&queryAgent, "agent", "", "producing agent")
	f.StringVar(&queryStatus, "status", "", "processing status")
	f.StringSliceVar(&queryTags, "tag", nil, "required tag (repeatable)")
	f.StringVar(&querySince, "since", "", "created on or after (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&queryUntil, "until", "", "created on or before (YYYY-MM-DD or RFC 3339)")
	f.IntVarP(&queryLimit, "limit", "n", 0, "maximum number of results (0 = all)")
	f.IntVar(&queryOffset, "offset", 0, "number of results to skip")
	f.StringVar(&querySort, "sort", "", "created, modified, id, version, status or type")
	f.StringVar(&queryOrder, "order", "", "asc or desc")
	f.BoolVar(&queryJSON, "json", false, "output results as JSON")

	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentQueryCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentStatsCmd)
	documentCmd.AddCommand(documentBackupsCmd)
	documentCmd.AddCommand(documentRestoreCmd)
	documentCmd.AddCommand(documentBacklinksCmd)
	documentCmd.AddCommand(documentOpenCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	stored, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if getRaw {
		data, err := documentService.Encode(stored.Document, stored.Body)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		cmd.Print(string(data))
		return nil
	}

	printHeader(cmd, stored)
	if stored.Body != "" {
		cmd.Println()
		cmd.Println(stored.Body)
	}
	return nil
}

func printHeader(cmd *cobra.Command, stored *domain.StoredDocument) {
	h := stored.Document.Head()
	cmd.Printf("%s\n\n", ui.Title.Render("Document: "+h.ID))
	field(cmd, "Type", string(h.Type))
	field(cmd, "Version", strconv.Itoa(h.Version))
	field(cmd, "Agent", string(h.Meta.Agent))
	field(cmd, "Status", ui.Status(h.Meta.Status).Render(string(h.Meta.Status)))
	field(cmd, "Created", h.Created.Format("2006-01-02 15:04:05"))
	field(cmd, "Modified", h.Modified.Format("2006-01-02 15:04:05"))
	field(cmd, "Path", stored.Path)
	if len(h.Meta.Tags) > 0 {
		field(cmd, "Tags", strings.Join(h.Meta.Tags, ", "))
	}
	for name, id := range stored.Document.References() {
		field(cmd, name, id)
	}
}

func field(cmd *cobra.Command, label, value string) {
	cmd.Printf("  %s %s\n", ui.Label.Render(fmt.Sprintf("%-10s", label+":")), value)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	var docType domain.DocumentType
	if listType != "" {
		t, err := domain.ParseDocumentType(listType)
		if err != nil {
			return err
		}
		docType = t
	}

	refs, err := documentService.List(cmd.Context(), docType)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(refs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for _, r := range refs {
		cmd.Printf("  %-24s %-20s v%-3d %s\n", r.ID, r.Type, r.Version, ui.Muted.Render(r.Path))
	}
	cmd.Printf("\nTotal: %d documents\n", len(refs))
	return nil
}

func runDocumentQuery(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	filter, err := buildQueryFilter()
	if err != nil {
		return err
	}

	docs, err := documentService.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputQueryJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		h := docs[i].Document.Head()
		cmd.Printf("  %-24s %-20s %s  %s\n",
			h.ID, h.Type,
			ui.Status(h.Meta.Status).Render(fmt.Sprintf("%-10s", h.Meta.Status)),
			h.Created.Format("2006-01-02"))
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func buildQueryFilter() (domain.QueryFilter, error) {
	filter := domain.QueryFilter{
		Agent:     domain.Agent(queryAgent),
		Status:    domain.Status(queryStatus),
		Tags:      queryTags,
		Limit:     queryLimit,
		Offset:    queryOffset,
		SortBy:    querySort,
		SortOrder: domain.SortOrder(queryOrder),
	}
	if queryType != "" {
		t, err := domain.ParseDocumentType(queryType)
		if err != nil {
			return filter, err
		}
		filter.Type = t
	}
	if querySince != "" || queryUntil != "" {
		var r domain.DateRange
		var err error
		if r.Start, err = parseDate(querySince, false); err != nil {
			return filter, err
		}
		if r.End, err = parseDate(queryUntil, true); err != nil {
			return filter, err
		}
		filter.DateRange = &r
	}
	return filter, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func parseDate(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidInput, s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

type queryResult struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Version  int               `json:"version"`
	Agent    string            `json:"agent"`
	Status   string            `json:"status"`
	Created  time.Time         `json:"created"`
	Modified time.Time         `json:"modified"`
	Path     string            `json:"path"`
	Tags     []string          `json:"tags,omitempty"`
	Refs     map[string]string `json:"references,omitempty"`
}

func outputQueryJSON(cmd *cobra.Command, docs []domain.StoredDocument) error {
	out := make([]queryResult, len(docs))
	for i := range docs {
		h := docs[i].Document.Head()
		out[i] = queryResult{
			ID:       h.ID,
			Type:     string(h.Type),
			Version:  h.Version,
			Agent:    string(h.Meta.Agent),
			Status:   string(h.Meta.Status),
			Created:  h.Created,
			Modified: h.Modified,
			Path:     docs[i].Path,
			Tags:     h.Meta.Tags,
			Refs:     docs[i].Document.References(),
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}

func runDocumentStats(cmd *cobra.Command, _ []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	stats, err := documentService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	cmd.Printf("%s\n\n", ui.Title.Render("Storage: "+stats.Root))
	for _, t := range domain.AllDocumentTypes() {
		ts := stats.ByType[t]
		cmd.Printf("  %-20s %4d files  %8d bytes  %3d backups  (%d indexed)\n",
			t, ts.Files, ts.Bytes, ts.Backups, stats.IndexedByType[t])
	}
	cmd.Printf("\n  Total: %d documents, %d bytes\n", stats.TotalDocuments, stats.TotalBytes)

	if len(stats.ByStatus) > 0 {
		cmd.Println()
		for _, st := range []domain.Status{
			domain.StatusDraft, domain.StatusPending, domain.StatusProcessing, domain.StatusProcessed,
			domain.StatusPublished, domain.StatusFailed, domain.StatusCancelled,
		} {
			if n := stats.ByStatus[st]; n > 0 {
				cmd.Printf("  %s %d\n", ui.Status(st).Render(fmt.Sprintf("%-11s", st)), n)
			}
		}
	}
	return nil
}

func runDocumentBackups(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	backups, err := documentService.Backups(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		cmd.Printf("No backups for %s.\n", args[0])
		return nil
	}
	for _, b := range backups {
		cmd.Printf("  v%-4d %8d bytes  %s  %s\n", b.Version, b.Size,
			b.ModTime.Format("2006-01-02 15:04:05"), ui.Muted.Render(b.Path))
	}
	return nil
}

func runDocumentRestore(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	version, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: version must be a number", domain.ErrInvalidInput)
	}

	ref, err := documentService.Restore(cmd.Context(), args[0], version)
	if err != nil {
		return fmt.Errorf("failed to restore document: %w", err)
	}
	cmd.Printf("%s\n", ui.Success.Render(fmt.Sprintf("Restored %s v%d as v%d", ref.ID, version, ref.Version)))
	return nil
}

func runDocumentBacklinks(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	entries, err := documentService.Backlinks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read backlinks: %w", err)
	}

	if len(entries) == 0 {
		cmd.Printf("Nothing references %s.\n", args[0])
		return nil
	}
	for _, e := range entries {
		cmd.Printf("  %-24s %-20s %s\n", e.ID, e.Type, ui.Muted.Render(e.Path))
	}
	return nil
}

func runDocumentOpen(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}

	if err := documentService.Open(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	cmd.Printf("Opened %s\n", args[0])
	return nil
}
