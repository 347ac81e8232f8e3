package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
)

func parcelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "parcel", Short: "Receive, move and inspect parcels"}
	cmd.AddCommand(parcelReceiveCmd())
	cmd.AddCommand(parcelMoveCmd())
	cmd.AddCommand(parcelShowCmd())
	cmd.AddCommand(parcelListCmd())
	cmd.AddCommand(parcelDeleteCmd())
	cmd.AddCommand(parcelTransitionsCmd())
	return cmd
}

func parcelReceiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive <id>",
		Short: "Register a parcel in state Received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReceiveParcel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func parcelMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <state>",
		Short: "Move a parcel to a new state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.TransitionParcel(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func parcelShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a parcel with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetParcel(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				tw := newTable()
				tw.SetTitle("%s (%s)", p.ID, p.CurrentState)
				tw.AppendHeader(table.Row{"#", "State", "At"})
				for i, ev := range p.History {
					tw.AppendRow(table.Row{i + 1, ev.State, formatTime(ev.Timestamp)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func parcelListCmd() *cobra.Command {
	var q engine.ParcelQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parcels a page at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListParcels(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "State", "Issues", "Last event"})
				for _, p := range page.Items {
					tw.AppendRow(table.Row{p.ID, p.CurrentState, p.IssueCount, formatTime(p.LastEventAt)})
				}
				tw.AppendFooter(table.Row{"", "", "page", page.Page})
				tw.AppendFooter(table.Row{"", "", "total", page.TotalItems})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 0, "items per page (0 uses the configured default)")
	cmd.Flags().StringVar(&q.State, "state", "", "only parcels in this state")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "last_event or id")
	cmd.Flags().StringVar(&q.Order, "order", "", "asc or desc")
	return cmd
}

func parcelDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a parcel, its issues and their attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DeleteParcel(ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func parcelTransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions",
		Short: "Show the allowed state transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				transitions := e.Transitions()
				pairs := transitions.Pairs()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"enforced": transitions.Enforce, "transitions": pairs})
				}
				tw := newTable()
				tw.SetTitle("enforced: %t", transitions.Enforce)
				tw.AppendHeader(table.Row{"From", "To"})
				for _, from := range domain.ParcelStates {
					if to, ok := pairs[string(from)]; ok {
						tw.AppendRow(table.Row{from, strings.Join(to, ", ")})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}
