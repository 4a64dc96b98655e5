package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mazeview/client"
	"mazeview/config"
	"mazeview/recorder"
	"mazeview/server"
	"mazeview/sim"
	"mazeview/store"
	"mazeview/terminal"
	"mazeview/transport"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	viewAddr   string
	remoteURL  string
	showTerm   bool
)

// newRootCommand defines the command line: view is the default, sim and schema are helpers.
func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "mazeview",
		Short:         "Live viewer for a grid-world Q-learning agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a yaml config; defaults apply when empty")

	view := viewCommand()
	rootCommand.RunE = view.RunE
	rootCommand.Flags().AddFlagSet(view.Flags())

	rootCommand.AddCommand(view)
	rootCommand.AddCommand(simCommand())
	rootCommand.AddCommand(schemaCommand())
	return rootCommand
}

func viewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Serve the viewer page for a running simulation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyViewFlags(cmd, cfg)
			if err = cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runView(ctx, cfg, log.Default())
		},
	}
	cmd.Flags().StringVar(&viewAddr, "addr", "", "Address to serve the page on, overriding the config")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "Base url of the simulation, overriding the config")
	cmd.Flags().BoolVar(&showTerm, "terminal", false, "Also draw the maze on this terminal")
	return cmd
}

// applyViewFlags overrides cfg with the flags the user set.
func applyViewFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("addr") {
		cfg.View.Addr = viewAddr
	}
	if cmd.Flags().Changed("remote") {
		cfg.Remote.BaseURL = remoteURL
	}
	if cmd.Flags().Changed("terminal") {
		cfg.View.Terminal = showTerm
	}
}

// runView wires the store, the controller, and the surfaces, and runs them until ctx is done.
func runView(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	remote, err := transport.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	if err != nil {
		return err
	}

	st := store.NewStore(cfg.StoreOptions(), logger)
	ctl := client.NewController(
		remote,
		client.TransportDialer(remote, cfg.Remote.StreamPath, cfg.Remote.Handshake, logger),
		st,
		logger)

	var rec *recorder.Recorder
	if cfg.Recorder.RedisAddr != "" {
		if rec, err = recorder.New(recorder.Options{
			Addr:   cfg.Recorder.RedisAddr,
			Stream: cfg.Recorder.Stream,
			MaxLen: cfg.Recorder.MaxLen,
		}, logger); err != nil {
			return err
		}
		defer rec.Close()
		if err = rec.Ping(ctx); err != nil {
			return err
		}
	}

	var printer *terminal.Printer
	if cfg.View.Terminal {
		if printer, err = terminal.NewPrinter(os.Stdout, cfg.Grid, cfg.View.TerminalRefresh); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	consumers := 1
	if rec != nil {
		consumers++
	}
	if printer != nil {
		consumers++
	}
	outs := channerics.Broadcast(groupCtx.Done(), st.Snapshots(), consumers)

	srv, err := server.NewServer(groupCtx, server.Options{
		Addr:              cfg.View.Addr,
		Size:              cfg.Grid,
		PublishResolution: cfg.View.PublishResolution,
	}, ctl, st.Current, outs[0], logger)
	if err != nil {
		return err
	}

	group.Go(func() error {
		st.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return ctl.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Printf("viewing %s on %s", cfg.Remote.BaseURL, cfg.View.Addr)
		return srv.Serve(groupCtx)
	})

	next := 1
	if rec != nil {
		snapshots := outs[next]
		next++
		group.Go(func() error {
			rec.Run(groupCtx, snapshots)
			return nil
		})
	}
	if printer != nil {
		snapshots := outs[next]
		group.Go(func() error {
			printer.Run(groupCtx, snapshots)
			return nil
		})
	}

	return group.Wait()
}

func simCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Serve the reference simulation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			opts := cfg.SimOptions()
			if cmd.Flags().Changed("addr") {
				opts.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			simulator, err := sim.New(opts, log.Default())
			if err != nil {
				return err
			}
			if err = simulator.Pretrain(ctx); err != nil {
				return err
			}
			log.Printf("simulating on %s", opts.Addr)
			return simulator.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to serve the simulation on, overriding the config")
	return cmd
}

func schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [name]",
		Short:     "Print the JSON schema of the simulation's wire formats",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: transport.SchemaNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := transport.SchemaNames()
			if len(args) == 1 {
				names = args
			}

			schemas := map[string]interface{}{}
			for _, name := range names {
				schema := transport.Schema(name)
				if schema == nil {
					return fmt.Errorf("unknown schema %q, want one of %v", name, transport.SchemaNames())
				}
				schemas[name] = schema
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				return enc.Encode(schemas[args[0]])
			}
			return enc.Encode(schemas)
		},
	}
}
