package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"nepse-observer/src/config"
	"nepse-observer/src/grpc_control"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"
	"nepse-observer/src/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------
// schedule: the long-running service
// -----------------------------------------------------------------------------

func newScheduleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run every job on its cadence and serve the API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd.Context(), opts)
		},
	}
}

func runSchedule(parent context.Context, opts *options) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.conf.MConfig

	// 1. API server fed by the synchronizer and the scheduler
	api := server.NewAPIServer(cfg, a.syncer, a.scheduler, logger.NewLogger(cfg, "APIServer"))
	a.syncer.OnUpdate(api.Broadcast)
	a.scheduler.OnStatus(func(st models.MJobStatus) {
		api.Broadcast(&models.MLatestData{Type: "JOB", Jobs: []models.MJobStatus{st}})
	})

	// 2. gRPC control, when a port is configured
	var ctl *grpc_control.Server
	if cfg.GrpcPort > 0 {
		addr := fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort)
		ctl = grpc_control.NewServer(addr, a.scheduler, logger.NewLogger(cfg, "ControlService"))
		a.scheduler.OnStatus(ctl.Service.OnJobStatus)
	}

	// 3. Scheduler
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if ctl != nil {
		for _, st := range a.scheduler.Statuses() {
			ctl.Service.OnJobStatus(st)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(api.Start)
	if ctl != nil {
		g.Go(ctl.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down...")

		grace := config.Seconds(a.conf.Jobs.ShutdownGraceSeconds)
		if err := a.scheduler.Stop(grace); errors.Is(err, scheduler.ErrShutdownTimeout) {
			a.log.Warning("%v", err)
		}
		if ctl != nil {
			ctl.Stop()
		}
		return api.Stop()
	})

	err = g.Wait()
	a.log.Info("Shutdown complete.")
	return err
}

// -----------------------------------------------------------------------------
// jobs: talk to a running service over gRPC
// -----------------------------------------------------------------------------

func newJobsCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect or trigger jobs of a running service"}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "control address, defaults to grpc_host:grpc_port from config")

	connect := func() (*grpc_control.Client, error) {
		if addr == "" {
			conf, err := config.NewConfig(opts.configPath)
			if err != nil {
				return nil, err
			}
			if conf.GrpcPort == 0 {
				return nil, fmt.Errorf("grpc_port is not configured, pass --addr")
			}
			addr = fmt.Sprintf("%s:%d", conf.GrpcHost, conf.GrpcPort)
		}
		return grpc_control.Dial(addr)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every job's status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := connect()
				if err != nil {
					return err
				}
				defer client.Close()

				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				list, err := client.ListJobs(ctx)
				if err != nil {
					return err
				}
				printJobs(list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "run NAME",
			Short: "Start a job now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := connect()
				if err != nil {
					return err
				}
				defer client.Close()

				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				runID, err := client.RunJob(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s started, run %s\n", args[0], runID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "health [JOB]",
			Short: "Show the serving status of the service or one job",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := connect()
				if err != nil {
					return err
				}
				defer client.Close()

				service := ""
				if len(args) == 1 {
					service = args[0]
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				st, err := client.Health(ctx, service)
				if err != nil {
					return err
				}
				fmt.Println(st)
				return nil
			},
		},
	)
	return cmd
}

func printJobs(list []models.MJobStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSCHEDULE\tLAST RUN\tOK/FAIL TODAY\tMESSAGE")
	for _, st := range list {
		last := "-"
		if st.LastRun > 0 {
			last = time.UnixMilli(st.LastRun).Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n", st.JobName, st.Status, st.Schedule, last, st.TodaySuccess, st.TodayFailure, st.Message)
	}
	w.Flush()
}
