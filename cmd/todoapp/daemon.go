package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/richardjkendall/todoapp/internal/daemon"
	"github.com/richardjkendall/todoapp/internal/notify"
	"github.com/richardjkendall/todoapp/internal/status"
	"github.com/richardjkendall/todoapp/internal/task"
	"github.com/richardjkendall/todoapp/internal/ui"
)

// broadcastSink delivers notification events to the log and, when the
// status server is running, to its WebSocket clients.
type broadcastSink struct {
	logger *log.Logger
	server *status.Server
}

func (b *broadcastSink) Send(event notify.Event) error {
	b.logger.Printf("Notification: %s: %s", event.Title, event.Body)
	if b.server != nil {
		b.server.BroadcastNotification(event)
	}
	return nil
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background session (foreground)",
	Long: `Run the background session: watch the local task file for edits,
sync changes to the cloud, fire notifications, and serve live status
over WebSocket.

The daemon will:
  1. Watch todos.json for external edits
  2. Push changes through the debounced sync pipeline
  3. Run the notification scheduler
  4. Broadcast sync state on the status port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		srv := status.NewServer(&status.Config{
			Port:     a.cfg.Status.Port,
			Snapshot: func() task.Collection { return a.todos() },
			Logger:   newLogger("[status] ", a.cfg),
		})
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()

		scheduler := notify.New(a.kv, &broadcastSink{
			logger: newLogger("[notify] ", a.cfg),
			server: srv,
		}, func() task.Collection { return a.todos() }, &notify.Config{
			Logger: newLogger("[notify] ", a.cfg),
		})
		applyNotificationConfig(a, scheduler)

		d, err := daemon.New(a.sy, scheduler, srv, a.cfg.MirrorPath(), &daemon.Config{
			Logger: newLogger("[daemon] ", a.cfg),
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting todoapp daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Mirror: %s\n", a.cfg.MirrorPath())
		fmt.Printf("   Status: http://%s\n", srv.Addr())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return d.Start(ctx)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run only the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		srv := status.NewServer(&status.Config{
			Port:     a.cfg.Status.Port,
			Snapshot: func() task.Collection { return a.todos() },
			Logger:   newLogger("[status] ", a.cfg),
		})
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()

		fmt.Printf("%s Status server on http://%s\n", ui.RenderAccent("●"), srv.Addr())
		fmt.Printf("Press Ctrl+C to stop\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

var flagSnoozeFor time.Duration

var snoozeCmd = &cobra.Command{
	Use:   "snooze <aged|priority|digest>",
	Short: "Snooze a notification channel's current tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel := notify.Channel(args[0])
		switch channel {
		case notify.ChannelAged, notify.ChannelPriority, notify.ChannelDigest:
		default:
			return fmt.Errorf("unknown channel %q (want aged, priority, or digest)", args[0])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		scheduler := notify.New(a.kv, nil, func() task.Collection { return a.todos() }, &notify.Config{
			Logger: newLogger("[notify] ", a.cfg),
		})

		now := time.Now()
		event, ok := scheduler.Detect(channel, now)
		if !ok {
			fmt.Printf("%s Nothing to snooze on the %s channel\n", ui.RenderDim("·"), channel)
			return nil
		}

		until := now.Add(flagSnoozeFor)
		if err := scheduler.Snooze(channel, event.Data.TodoIDs, until); err != nil {
			return err
		}
		fmt.Printf("%s Snoozed %d tasks until %s\n", ui.RenderPass("✓"), len(event.Data.TodoIDs), until.Format("2006-01-02 15:04"))
		return nil
	},
}

// applyNotificationConfig layers the config file's channel switches over
// the persisted settings, keeping snoozes intact.
func applyNotificationConfig(a *app, scheduler *notify.Scheduler) {
	settings := scheduler.Settings()
	settings.AgedEnabled = a.cfg.Notifications.AgedEnabled
	settings.PriorityEnabled = a.cfg.Notifications.PriorityEnabled
	settings.DigestEnabled = a.cfg.Notifications.DigestEnabled
	if a.cfg.Notifications.DigestTime != "" {
		settings.DigestTime = a.cfg.Notifications.DigestTime
	}
	if err := scheduler.SaveSettings(settings); err != nil {
		newLogger("[notify] ", a.cfg).Printf("Failed to save settings: %v", err)
	}
}

func init() {
	snoozeCmd.Flags().DurationVar(&flagSnoozeFor, "for", 24*time.Hour, "how long to snooze")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snoozeCmd)
}
