package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stageflow/internal/app"
	"stageflow/internal/domain"
	"stageflow/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectStagesCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectRows(items []domain.Project) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.CurrentPhase, p.Status, strconv.Itoa(p.Progress) + "%", p.UpdatedAt})
	}
	return rows
}

var projectHeader = table.Row{"ID", "Name", "Stage", "Status", "Progress", "Updated"}

func projectCreateCmd() *cobra.Command {
	var id, name, clientID, lead string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with one record per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.CreateProject(ctx, engine.CreateProjectInput{
					ID:       id,
					Name:     name,
					ClientID: clientID,
					TeamLead: lead,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				return printTable(p, projectHeader, projectRows([]domain.Project{p}))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&lead, "team-lead", "", "team lead assigned to every stage")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printTable(items, projectHeader, projectRows(items))
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printTable(p, projectHeader, projectRows([]domain.Project{p}))
			})
		},
	}
}

func projectStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages <project-id>",
		Short: "List the stage records of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListStages(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					rows = append(rows, table.Row{s.StageNumber, s.StageName, s.Status, strconv.Itoa(s.ProgressPercentage) + "%",
						deref(s.ActualStartDate), deref(s.ActualEndDate)})
				}
				return printTable(items, table.Row{"#", "Stage", "Status", "Progress", "Started", "Ended"}, rows)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteProject(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}
