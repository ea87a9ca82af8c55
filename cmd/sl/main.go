package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintline/internal/app"
	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
	"sprintline/internal/repo"
	"sprintline/internal/server"
	"sprintline/internal/workload"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Sprintline CLI",
	Long: `Sprintline tracks team work in fixed one-week sprints.
Core concepts:
- Workspace: your .sprintline directory holding the database.
- Organization: a team; its creation instant anchors sprint numbering.
- Sprint: Monday-aligned UTC week, numbered from the org's first week.
- Task: a work item with status, priority, points, and an assignee.
- Time ledger: append-only work sessions; a task's total always equals
  the sum of its entries.
- Event log: diary of changes, view with 'sl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user (id or email)")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides the single-org default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default sprintline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userRegisterCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, orgs, err := e.RegisterUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"user": u, "orgs": orgs})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.OrgName, "org-name", "", "create an organization on signup")
	cmd.Flags().StringVar(&opts.InviteCode, "invite-code", "", "join an organization on signup")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
		Long:  "Organizations own tasks and members. The creation instant anchors the org's sprint numbering and never changes.",
	}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgJoinCmd())
	org.AddCommand(orgListCmd())
	org.AddCommand(orgInviteCmd())
	org.AddCommand(orgInvitesCmd())
	org.AddCommand(orgMembersCmd())
	return org
}

func orgInvitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "List pending invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				invites, err := e.Repo.ListInvites(ctx, org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(invites)
			})
		},
	}
	return cmd
}

func orgCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e.Repo)
				if err != nil {
					return err
				}
				org, err := e.CreateOrganization(ctx, name, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgJoinCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join organization by invite code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e.Repo)
				if err != nil {
					return err
				}
				org, err := e.JoinOrganization(ctx, code, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "invite code")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func orgListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e.Repo)
				if err != nil {
					return err
				}
				orgs, err := e.Repo.ListOrganizationsForUser(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Invite Code", "Created"})
				for _, o := range orgs {
					tw.AppendRow(table.Row{o.ID, o.Name, o.InviteCode, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func orgInviteCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite a member by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				joined, err := e.InviteMember(ctx, org.ID, email, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"joined": joined})
				}
				if joined {
					fmt.Printf("%s joined %s\n", email, org.Name)
				} else {
					fmt.Printf("Invite recorded for %s; they join on signup\n", email)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func orgMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List organization members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				members, err := e.ListMembers(ctx, org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Joined"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.User.ID, m.User.Name, m.User.Email, m.Role, m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the work items. They flow todo -> in_progress -> done, carry story points, and land in the sprint their start date falls in.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskCommentCmd())
	task.AddCommand(taskCommentsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				opts.OrgID = org.ID
				opts.ActorID = actor.ID
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (todo, in_progress, done)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().IntVar(&opts.Points, "points", 0, "story points")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				f.OrgID = org.ID
				f.HasSprintIndex = cmd.Flags().Changed("sprint")
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Points", "Sprint", "Assignee"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.Points, t.SprintIndex, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.SprintIndex, "sprint", 0, "sprint index filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				t, err := e.GetTask(ctx, org.ID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, priority, assign, start, due string
	var points int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("points") {
				opts.Points = &points
			}
			if cmd.Flags().Changed("assign") {
				opts.Assign = &assign
			}
			if cmd.Flags().Changed("start") {
				opts.StartDate = &start
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				opts.ActorID = actor.ID
				t, err := e.UpdateTask(ctx, org.ID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().IntVar(&points, "points", 0, "new story points")
	cmd.Flags().StringVar(&assign, "assign", "", "set assignee id (empty clears)")
	cmd.Flags().StringVar(&start, "start", "", "new start date (RFC3339, moves the task's sprint)")
	cmd.Flags().StringVar(&due, "due", "", "new due date (RFC3339)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task and its ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				return e.DeleteTask(ctx, org.ID, id, actor.ID)
			})
		},
	}
	return cmd
}

func taskCommentCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				c, err := e.AddComment(ctx, org.ID, id, text, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func taskCommentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments <id>",
		Short: "List task comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				comments, err := e.ListComments(ctx, org.ID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(comments)
			})
		},
	}
	return cmd
}

func timeCmd() *cobra.Command {
	tc := &cobra.Command{
		Use:   "time",
		Short: "Time ledger",
		Long:  "Work sessions append to a task's ledger; the task total is always the sum of its entries.",
	}
	tc.AddCommand(timeLogCmd())
	tc.AddCommand(timeListCmd())
	tc.AddCommand(timeTimelineCmd())
	return tc
}

func timeLogCmd() *cobra.Command {
	var started, ended string
	var duration int64
	cmd := &cobra.Command{
		Use:   "log <task-id>",
		Short: "Log a work session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				entry, total, err := e.LogSession(ctx, org.ID, id, started, ended, duration, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"entry": entry, "time_spent_seconds": total})
			})
		},
	}
	cmd.Flags().StringVar(&started, "started", "", "session start (RFC3339, defaults to now minus duration)")
	cmd.Flags().StringVar(&ended, "ended", "", "session end (RFC3339)")
	cmd.Flags().Int64Var(&duration, "seconds", 0, "session duration in seconds")
	return cmd
}

func timeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's time entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				entries, err := e.ListTimeEntries(ctx, org.ID, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Started", "Ended", "Seconds"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.ID, en.UserID, en.StartedAt, en.EndedAt, en.DurationSeconds})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func timeTimelineCmd() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Per-weekday logged minutes for a week",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				var at time.Time
				if week != "" {
					var err error
					at, err = time.Parse(time.RFC3339, week)
					if err != nil {
						return fmt.Errorf("invalid --week: %w", err)
					}
				}
				tl, err := e.WeeklyTimeline(ctx, org.ID, at)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				fmt.Printf("Week %s .. %s\n", tl.WeekStart, tl.WeekEnd)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Minutes"})
				for _, day := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
					tw.AppendRow(table.Row{day, tl.Minutes[day]})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any instant inside the wanted week (RFC3339)")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Workload reports",
	}
	rep.AddCommand(reportStatsCmd())
	rep.AddCommand(reportDistributionCmd())
	rep.AddCommand(reportPerformanceCmd())
	return rep
}

func reportStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Snapshot counters and current sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				snap, err := e.Snapshot(ctx, org.ID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"snapshot": snap, "by_status": counts})
				}
				fmt.Printf("Org: %s\n", org.Name)
				fmt.Printf("Sprint %d: %s .. %s\n", snap.SprintIndex, snap.SprintStart, snap.SprintEnd)
				fmt.Printf("Tasks: %d total, %d done, %d pending\n", snap.TotalTasks, snap.CompletedTasks, snap.PendingTasks)
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func reportDistributionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Workload by assignee",
		RunE:  runAggregateReport(engine.Engine.Distribution),
	}
	return cmd
}

func reportPerformanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Completed work by assignee",
		RunE:  runAggregateReport(engine.Engine.Performance),
	}
	return cmd
}

func sprintCmd() *cobra.Command {
	sp := &cobra.Command{
		Use:   "sprint",
		Short: "Sprint calendar",
		Long:  "Sprints are Monday-aligned UTC weeks numbered from the org's creation week.",
	}
	sp.AddCommand(sprintCurrentCmd())
	sp.AddCommand(sprintShowCmd())
	return sp
}

func sprintCurrentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Sprint in effect now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				info, err := e.CurrentSprint(ctx, org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(info)
			})
		},
	}
	return cmd
}

func sprintShowCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Sprint range by index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				info, err := e.SprintByIndex(ctx, org.ID, index)
				if err != nil {
					return err
				}
				return printJSONOrTable(info)
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 1, "sprint index")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: org, task, comment, and time changes.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
				events, err := e.Repo.LatestEvents(ctx, n, org.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "API keys authenticate HTTP requests via the X-Api-Key header. Only the hash is stored; the raw key is shown once at creation.",
	}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e.Repo)
				if err != nil {
					return err
				}
				raw := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    actor.ID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: e.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": raw})
				}
				fmt.Printf("Created key %s (%s)\n", key.ID, key.Name)
				fmt.Printf("Save it now, it is not shown again: %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e.Repo)
				if err != nil {
					return err
				}
				keys, err := e.Repo.ListAPIKeys(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("SPRINTLINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret is required; set auth.jwt_secret in sprintline.yml or SPRINTLINE_JWT_SECRET")
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: server.AuthConfig{JWTSecret: secret}})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sprintline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

// withScopedEngine resolves the actor and the active org before running fn.
func withScopedEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.User, domain.Organization) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actor, err := resolveActor(ctx, e.Repo)
		if err != nil {
			return err
		}
		org, err := app.ResolveOrganization(ctx, viper.GetString("org"), actor.ID, e.Repo)
		if err != nil {
			return err
		}
		if err := e.RequireMembership(ctx, org.ID, actor.ID); err != nil {
			return err
		}
		return fn(ctx, e, actor, org)
	})
}

func resolveActor(ctx context.Context, r repo.Repo) (domain.User, error) {
	ref := strings.TrimSpace(viper.GetString("actor"))
	if ref == "" {
		return domain.User{}, fmt.Errorf("actor required; pass --actor or set SPRINTLINE_ACTOR (id or email)")
	}
	if strings.Contains(ref, "@") {
		return r.GetUserByEmail(ctx, strings.ToLower(ref))
	}
	return r.GetUser(ctx, ref)
}

func runAggregateReport(fetch func(engine.Engine, context.Context, string) ([]workload.AssigneeAggregate, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withScopedEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User, org domain.Organization) error {
			rows, err := fetch(e, ctx, org.ID)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Assignee", "Tasks", "Points"})
			for _, row := range rows {
				tw.AppendRow(table.Row{row.Label, row.TaskCount, row.Points})
			}
			tw.Render()
			return nil
		})
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
