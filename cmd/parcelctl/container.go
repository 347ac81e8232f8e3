package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parceltrack/internal/engine"
)

func containerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "container", Short: "Group parcels and move them together"}
	cmd.AddCommand(containerAddCmd())
	cmd.AddCommand(containerRemoveCmd())
	cmd.AddCommand(containerShowCmd())
	cmd.AddCommand(containerListCmd())
	cmd.AddCommand(containerMoveCmd())
	cmd.AddCommand(containerDeleteCmd())
	return cmd
}

func containerAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <container-id> <parcel-id>...",
		Short: "Add parcels to a container, creating it if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddContainerMembers(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func containerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <container-id> <parcel-id>...",
		Short: "Remove parcels from a container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RemoveContainerMembers(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func containerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a container and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetContainer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func containerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContainers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Members", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, len(c.Members), formatTime(c.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func containerMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <state>",
		Short: "Move every parcel in a container to a state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.PropagateContainerState(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.SetTitle("%s -> %s: %d of %d moved", res.ContainerID, res.State, res.Modified, res.Requested)
				tw.AppendHeader(table.Row{"Parcel", "Not moved because"})
				for _, f := range res.Failures {
					tw.AppendRow(table.Row{f.ParcelID, f.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func containerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a container, keeping its parcels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteContainer(ctx, cliPrincipal(), args[0])
			})
		},
	}
}
