package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/rtmon/pkg/client"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands writing to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	rtmonCommand := &command{out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags),
		createSetCommand(rtmonCommand),
		createCancelCommand(rtmonCommand),
		createListCommand(rtmonCommand),
		createStatusCommand(rtmonCommand),
		createTickCommand(rtmonCommand),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "rtmon",
		Short: "Periodic real-time task monitor",
		Long: `rtmon wakes registered processes once per period and retires them when
they exit. Tasks register with a budget C and a period T in milliseconds.

Examples:
  rtmon serve                            # Start daemon with defaults
  rtmon set --pid=4242 --c=20 --t=100    # Monitor pid 4242
  rtmon list
  rtmon tick --c=5 --t=50 --count=10     # Run a demo periodic task`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addConnFlags(cmd *cobra.Command, f *ConnFlags) {
	cmd.Flags().StringVar(&f.Socket, "socket", client.DefaultSocket, "daemon control socket")
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "use the HTTP API instead (e.g. http://127.0.0.1:8090/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

// addPIDFlags adds --pid and --pidfile; exactly one is required.
func addPIDFlags(cmd *cobra.Command, pid *int32, pidFile *string) {
	cmd.Flags().Int32Var(pid, "pid", 0, "process id")
	cmd.Flags().StringVar(pidFile, "pidfile", "", "read the process id from this file")
	cmd.MarkFlagsOneRequired("pid", "pidfile")
	cmd.MarkFlagsMutuallyExclusive("pid", "pidfile")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the rtmon daemon",
		Long: `Start the daemon serving the control socket, the HTTP API and metrics.
Configuration comes from an optional TOML file and RTMON_* environment variables.

Examples:
  rtmon serve                     # Defaults plus environment
  rtmon serve config.toml         # Start with specific config file
  rtmon serve --daemonize         # Run in background (pidfile from [server].pidfile)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "write daemon logs to file")
	return cmd
}

func createSetCommand(c *command) *cobra.Command {
	f := &SetFlags{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Register a process as a periodic task",
		Long: `Register a process with execution budget C and period T (1 <= C <= T <= 10000 ms).

Examples:
  rtmon set --pid=4242 --c=20 --t=100
  rtmon set --pidfile=/run/worker.pid --c=5 --t=50
  rtmon set --pid=4242 --c=20 --t=100 --api-url=http://127.0.0.1:8090/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Set(*f)
		},
	}
	addConnFlags(cmd, &f.ConnFlags)
	addPIDFlags(cmd, &f.PID, &f.PIDFile)
	cmd.Flags().Int32Var(&f.C, "c", 0, "execution budget in ms (required)")
	cmd.Flags().Int32Var(&f.T, "t", 0, "period in ms (required)")
	for _, name := range []string{"c", "t"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func createCancelCommand(c *command) *cobra.Command {
	f := &PIDFlags{}
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Stop monitoring a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Cancel(*f)
		},
	}
	addConnFlags(cmd, &f.ConnFlags)
	addPIDFlags(cmd, &f.PID, &f.PIDFile)
	return cmd
}

func createListCommand(c *command) *cobra.Command {
	f := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitored tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(*f)
		},
	}
	addConnFlags(cmd, &f.ConnFlags)
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	f := &PIDFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one monitored task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*f)
		},
	}
	addConnFlags(cmd, &f.ConnFlags)
	addPIDFlags(cmd, &f.PID, &f.PIDFile)
	return cmd
}

func createTickCommand(c *command) *cobra.Command {
	f := &TickFlags{}
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run this process as a periodic task",
		Long: `Register the rtmon process itself, wait for each period, report its
lateness and cancel on exit. Requires the control socket.

Examples:
  rtmon tick --c=5 --t=50 --count=20
  rtmon tick --c=10 --t=100 --work=8ms     # spend 8ms busy every period`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.Tick(ctx, *f)
		},
	}
	cmd.Flags().StringVar(&f.Socket, "socket", client.DefaultSocket, "daemon control socket")
	cmd.Flags().Int32Var(&f.C, "c", 1, "execution budget in ms")
	cmd.Flags().Int32Var(&f.T, "t", 100, "period in ms")
	cmd.Flags().IntVar(&f.Count, "count", 10, "periods to run; 0 runs until interrupted")
	cmd.Flags().DurationVar(&f.Work, "work", 0, "busy time per period")
	return cmd
}
