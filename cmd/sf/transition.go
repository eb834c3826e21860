package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stageflow/internal/app"
	"stageflow/internal/engine"
	"stageflow/internal/repo"
)

func transitionCmd() *cobra.Command {
	tr := &cobra.Command{Use: "transition", Short: "Move projects between stages"}
	tr.AddCommand(transitionRunCmd())
	tr.AddCommand(transitionCheckCmd())
	tr.AddCommand(transitionHistoryCmd())
	return tr
}

func transitionRunCmd() *cobra.Command {
	var reason, notes, approvalID string
	var checklist, approved bool
	cmd := &cobra.Command{
		Use:   "run <project-id> <stage name>",
		Short: "Transition a project to a stage",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Transition(ctx, engine.TransitionInput{
					ProjectID:          args[0],
					ActorID:            actorID(),
					ToStage:            strings.Join(args[1:], " "),
					Reason:             optionalString(reason),
					Notes:              optionalString(notes),
					ChecklistCompleted: checklist,
					ApprovalReceived:   approved,
					ApprovalID:         optionalString(approvalID),
				})
				if err != nil {
					return err
				}
				return printTable(res, table.Row{"Transition", "From", "To", "At"},
					[]table.Row{{res.TransitionID, res.FromStage, res.ToStage, res.TransitionedAt}})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the project moves")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&checklist, "checklist", false, "stage checklist was completed")
	cmd.Flags().BoolVar(&approved, "approved", false, "client approval was received")
	cmd.Flags().StringVar(&approvalID, "approval-id", "", "approval record backing the move")
	return cmd
}

func transitionCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <project-id> [stage name]",
		Short: "Report whether the current stage looks ready to leave",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				check, err := a.Engine.CanTransition(ctx, engine.CheckInput{
					ProjectID: args[0],
					ToStage:   strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				rows := []table.Row{
					{"current stage", check.CurrentStage},
					{"allowed", check.Allowed},
					{"tasks", fmt.Sprintf("%d/%d", check.StageProgress.CompletedTasks, check.StageProgress.TotalTasks)},
				}
				for _, r := range check.Reasons {
					rows = append(rows, table.Row{"reason", r})
				}
				for _, w := range check.Warnings {
					rows = append(rows, table.Row{"warning", w})
				}
				return printTable(check, table.Row{"Field", "Value"}, rows)
			})
		},
	}
}

func transitionHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show transitions, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.History(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					by := t.TransitionedByName
					if by == "" {
						by = t.TransitionedBy
					}
					rows = append(rows, table.Row{t.TransitionedAt, t.FromStage, t.ToStage, by, deref(t.Reason)})
				}
				return printTable(items, table.Row{"At", "From", "To", "By", "Reason"}, rows)
			})
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Inspect the audit log"}
	var n int
	var eventType string
	tail := &cobra.Command{
		Use:   "tail [project-id]",
		Short: "Show the latest audit entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.ActivityFilter{EventType: eventType, Limit: n}
			if len(args) == 1 {
				f.ProjectID = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ActivityLog(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.CreatedAt, it.EventType, it.UserID, it.Description})
				}
				return printTable(items, table.Row{"At", "Event", "User", "Description"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&eventType, "type", "", "event type filter")
	act.AddCommand(tail)
	return act
}

func notificationsCmd() *cobra.Command {
	nc := &cobra.Command{Use: "notifications", Short: "Inspect stored notifications"}
	var user, project string
	var unread bool
	var n int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Notifications(ctx, repo.NotificationFilter{
					UserID:     user,
					ProjectID:  project,
					UnreadOnly: unread,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.CreatedAt, it.UserID, it.Priority, it.Title, it.Message, it.Read})
				}
				return printTable(items, table.Row{"At", "User", "Priority", "Title", "Message", "Read"}, rows)
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "recipient filter")
	list.Flags().StringVar(&project, "project", "", "project filter")
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	list.Flags().IntVar(&n, "n", 50, "number of notifications")
	nc.AddCommand(list)
	return nc
}
