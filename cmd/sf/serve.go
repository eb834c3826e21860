package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageflow/internal/app"
	"stageflow/internal/domain"
	"stageflow/internal/engine"
	"stageflow/internal/engine/auth"
	"stageflow/internal/repo"
	"stageflow/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, noRelay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("STAGEFLOW_JWT_SECRET is required for bearer auth")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !noRelay {
					pub, err := a.Publisher()
					if err != nil {
						return err
					}
					defer pub.Close()
					relay := a.Relay(pub)
					relay.Start(ctx)
					defer relay.Stop()
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Policy:   auth.Policy{Roles: a.Config.RolePermissions()},
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: devLogin, Logger: a.Logger},
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving stageflow api", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving Stageflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (never in production)")
	cmd.Flags().BoolVar(&noRelay, "no-relay", false, "do not run the outbox relay in this process")
	return cmd
}

func relayCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish committed transition events from the outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				pub, err := a.Publisher()
				if err != nil {
					return err
				}
				defer pub.Close()
				relay := a.Relay(pub)
				if once {
					if err := relay.ProcessOnce(ctx); err != nil {
						return err
					}
					return printJSON(relay.Stats())
				}
				relay.Start(ctx)
				<-ctx.Done()
				relay.Stop()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process one batch and exit")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var user, name string
	var roles []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			secret := "sf_" + hex.EncodeToString(buf)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    user,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					Roles:     roles,
					CreatedAt: domain.Timestamp(time.Now()),
				}
				if err := a.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printTable(map[string]any{"id": key.ID, "user_id": key.UserID, "key": secret},
					table.Row{"ID", "User", "Key"}, []table.Row{{key.ID, key.UserID, secret}})
			})
		},
	}
	create.Flags().StringVar(&user, "user", "", "user the key acts as")
	create.Flags().StringVar(&name, "name", "", "label")
	create.Flags().StringSliceVar(&roles, "role", nil, "role granted to the key (repeatable)")
	_ = create.MarkFlagRequired("user")

	var listUser string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, listUser)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k.ID, k.UserID, k.Name, k.Roles, k.CreatedAt})
				}
				return printTable(keys, table.Row{"ID", "User", "Name", "Roles", "Created"}, rows)
			})
		},
	}
	list.Flags().StringVar(&listUser, "user", "", "user filter")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	ak.AddCommand(create, list, revoke)
	return ak
}

func demoCmd() *cobra.Command {
	demo := &cobra.Command{Use: "demo", Short: "Demo data"}
	demo.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create a sample project with a team and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return seedDemo(ctx, a.Engine)
			})
		},
	})
	return demo
}

func seedDemo(ctx context.Context, e *engine.Engine) error {
	created := domain.Timestamp(time.Now())
	for _, u := range []domain.User{
		{ID: "pm", Name: "Pat Manager", Email: "pat@example.com", CreatedAt: created},
		{ID: "dev1", Name: "Dana Developer", Email: "dana@example.com", CreatedAt: created},
		{ID: "des1", Name: "Sam Designer", Email: "sam@example.com", CreatedAt: created},
	} {
		if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
			return err
		}
	}
	p, err := e.CreateProject(ctx, engine.CreateProjectInput{ID: "demo", Name: "Demo Website", ActorID: "pm", TeamLead: "pm"})
	if err != nil {
		return err
	}
	stages, err := e.ListStages(ctx, p.ID)
	if err != nil {
		return err
	}
	tasks := []struct{ id, stage, who, title, status string }{
		{"demo-1", stages[0].ID, "pm", "Kick-off brief", repo.TaskDone},
		{"demo-2", stages[0].ID, "des1", "Sitemap", "todo"},
		{"demo-3", stages[1].ID, "des1", "Wireframes", "todo"},
		{"demo-4", stages[2].ID, "dev1", "Landing page", "todo"},
	}
	for _, t := range tasks {
		stageID, who := t.stage, t.who
		if err := e.Repo.InsertTask(ctx, nil, domain.Task{ID: t.id, ProjectID: p.ID, StageID: &stageID, AssignedTo: &who, Title: t.title, Status: t.status}); err != nil {
			return err
		}
	}
	fmt.Printf("seeded project %s with %d stages and %d tasks\n", p.ID, len(stages), len(tasks))
	return nil
}
