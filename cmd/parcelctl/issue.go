package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parceltrack/internal/engine"
)

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue", Short: "File and follow up parcel issues"}
	cmd.AddCommand(issueCreateCmd())
	cmd.AddCommand(issueShowCmd())
	cmd.AddCommand(issueListCmd())
	cmd.AddCommand(issueUpdateCmd())
	cmd.AddCommand(issueDetailsCmd())
	cmd.AddCommand(issueDeleteCmd())
	return cmd
}

// openFiles opens local paths as upload files. The returned func closes them.
func openFiles(paths []string) ([]engine.File, func(), error) {
	var (
		files   []engine.File
		handles []*os.File
	)
	closeAll := func() {
		for _, f := range handles {
			f.Close()
		}
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		handles = append(handles, f)
		files = append(files, engine.File{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Reader:      f,
		})
	}
	return files, closeAll, nil
}

func issueCreateCmd() *cobra.Command {
	var in engine.IssueCreate
	var attach []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File an issue for a parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, closeFiles, err := openFiles(attach)
			if err != nil {
				return err
			}
			defer closeFiles()
			in.Files = files
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.CreateIssue(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(is)
			})
		},
	}
	cmd.Flags().StringVar(&in.ParcelID, "parcel", "", "parcel id")
	cmd.Flags().StringVar(&in.Type, "type", "", "issue type, e.g. Damaged or Lost")
	cmd.Flags().StringVar(&in.Description, "description", "", "what happened")
	cmd.Flags().StringSliceVar(&attach, "attach", nil, "file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("parcel")
	return cmd
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(is)
				}
				tw := newTable()
				tw.SetTitle("%s %s (%s): %s", is.ID, is.Type, is.Status, is.Description)
				tw.AppendHeader(table.Row{"At", "Status", "Comment", "Attachments"})
				for _, ev := range is.History {
					tw.AppendRow(table.Row{formatTime(ev.Timestamp), ev.Status, ev.Comment, strings.Join(ev.Attachments, "\n")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func issueListCmd() *cobra.Command {
	var f engine.IssueFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListIssues(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Parcel", "Type", "Status", "Attachments", "Created"})
				for _, is := range items {
					tw.AppendRow(table.Row{is.ID, is.ParcelID, is.Type, is.Status, len(is.Attachments), formatTime(is.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.ParcelID, "parcel", "", "parcel filter")
	return cmd
}

func issueUpdateCmd() *cobra.Command {
	var upd engine.IssueUpdate
	var attach []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change status, comment or attach files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if upd.Status == "" && upd.Comment == "" && len(attach) == 0 {
				return fmt.Errorf("one of --status, --comment or --attach required")
			}
			files, closeFiles, err := openFiles(attach)
			if err != nil {
				return err
			}
			defer closeFiles()
			upd.Files = files
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				is, err := e.UpdateIssue(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(is)
			})
		},
	}
	cmd.Flags().StringVar(&upd.Status, "status", "", "new status")
	cmd.Flags().StringVar(&upd.Comment, "comment", "", "comment to record")
	cmd.Flags().StringSliceVar(&attach, "attach", nil, "file to attach (repeatable)")
	return cmd
}

func issueDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <parcel-id>...",
		Short: "Issue counts and parcel history for a batch of parcels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.IssueDetailsBatch(ctx, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Parcel", "Issues", "First event", "Events"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ParcelID, d.IssueCount, formatTime(d.FirstEventAt), len(d.History)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func issueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue and its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DeleteIssue(ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}
