package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"beacon-tracker.klederson.com/internal/alert"
	"beacon-tracker.klederson.com/internal/app"
	"beacon-tracker.klederson.com/internal/config"
	"beacon-tracker.klederson.com/internal/logging"
	"beacon-tracker.klederson.com/internal/scan"
	"beacon-tracker.klederson.com/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDemo     bool
	flagSeed     int64
	flagAdapter  string
	flagStrategy string
	flagNear     float64
	flagLogLevel string
	flagLogFile  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beacon-tracker",
		Short: "Beacon Tracker - Terminal BLE beacon proximity tracker",
		Long: `Beacon Tracker listens for BLE advertisements from a fixed set of named
beacons, estimates how close each one is and fires an alert when a beacon
comes near.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo flag for demonstration mode without Bluetooth hardware.`,
		SilenceUsage: true,
		RunE:         runTUI,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	pf.BoolVar(&flagDemo, "demo", false, "Run in demo mode with simulated beacons (no Bluetooth required)")
	pf.Int64Var(&flagSeed, "seed", 0, "Demo mode random seed (0 uses the clock)")
	pf.StringVar(&flagAdapter, "adapter", "", "Bluetooth adapter to use (default hci0)")
	pf.StringVar(&flagStrategy, "strategy", "", "Proximity strategy: linear or log-distance")
	pf.Float64Var(&flagNear, "near", 0, "Near threshold (strength for linear, meters for log-distance)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFile, "log-file", "", "Write logs to this file")

	rootCmd.AddCommand(newWatchCmd(), newConfigCmd())
	return rootCmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter = flagAdapter
	}
	if flags.Changed("strategy") {
		cfg.Strategy = flagStrategy
	}
	if flags.Changed("near") {
		cfg.NearThreshold = flagNear
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = flagLogFile
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newSource(cfg config.Config) (scan.Source, string) {
	if flagDemo {
		seed := flagSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return scan.NewDemoSource(cfg.Targets, seed), "demo"
	}
	return scan.NewBLESource(cfg.Adapter), cfg.Adapter
}

// setup builds the session and alert player shared by the TUI and watch
// commands. logOut receives logs when no log file is configured.
func setup(cmd *cobra.Command, logOut io.Writer) (*session.Session, *alert.Player, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, "", err
	}
	if err := logging.Setup(cfg.Log, logOut); err != nil {
		return nil, nil, "", err
	}

	src, label := newSource(cfg)
	sess, err := session.New(cfg, src)
	if err != nil {
		return nil, nil, "", err
	}
	return sess, alert.NewPlayer(cfg.Alerts), label, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	// The alt screen owns the terminal; logs go to the file or nowhere.
	sess, player, label, err := setup(cmd, io.Discard)
	if err != nil {
		return err
	}
	defer logging.Close()

	unsubscribe := player.Attach(sess.Subscribe)
	defer player.Wait()
	defer unsubscribe()

	model := app.New(sess, label)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithFPS(30),
	)

	// Start scanning with reference to the tea program
	if err := model.StartSession(p); err != nil {
		model.StopSession()
		if !flagDemo {
			printPermissionHelp(err)
		}
		return err
	}

	_, err = p.Run()
	model.StopSession()
	return err
}

func printPermissionHelp(err error) {
	fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
	fmt.Fprintln(os.Stderr, "Bluetooth scanning requires elevated permissions.")
	fmt.Fprintln(os.Stderr, "Try one of:")
	fmt.Fprintln(os.Stderr, "  sudo ./beacon-tracker")
	fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./beacon-tracker")
	fmt.Fprintln(os.Stderr, "  ./beacon-tracker --demo    (demo mode, no hardware needed)")
}
