package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fluxionwatt/daqbridge/internal/config"
	"github.com/fluxionwatt/daqbridge/internal/orchestrator"
	"github.com/fluxionwatt/daqbridge/internal/paths"
	"github.com/fluxionwatt/daqbridge/internal/pidfile"
)

var rootDir string

func init() {
	serveCmd.Flags().StringVar(&rootDir, "root", ".", "directory holding mapping.csv, alarmsMapping.csv, sru.ini and the log/data subdirectories")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.Debug = cfg.Debug || debug
		if cfg.RootDir != "" && rootDir == "." {
			rootDir = cfg.RootDir
		}

		p := paths.Default(rootDir)

		if err := pidfile.Create(p.PIDFile); err != nil {
			return err
		}
		defer pidfile.Remove(p.PIDFile)

		gw, err := orchestrator.New(cfg, p)
		if err != nil {
			return fmt.Errorf("build gateway: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			for s := range sig {
				switch s {
				case syscall.SIGUSR1:
					if err := gw.ReopenLogs(); err != nil {
						log.Printf("reopen logs: %v", err)
					}
				case syscall.SIGTERM, syscall.SIGINT:
					cancel()
					return
				}
			}
		}()

		return gw.Run(ctx)
	},
}
