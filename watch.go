package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	"beacon-tracker.klederson.com/internal/logging"
	"beacon-tracker.klederson.com/internal/ui"
	"github.com/spf13/cobra"
)

var flagInterval time.Duration

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan without the TUI, printing triggers and the nearest beacon",
		RunE:  runWatch,
	}
	cmd.Flags().DurationVar(&flagInterval, "interval", 2*time.Second, "How often to print the nearest beacon (0 disables)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	sess, player, label, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer logging.Close()

	out := cmd.OutOrStdout()
	unsubscribe := player.Attach(sess.Subscribe)
	defer player.Wait()
	defer unsubscribe()

	unit := sess.Unit()
	unprint := sess.Subscribe(func(ev beacon.Event) {
		line := fmt.Sprintf("%s %-5s %s", ev.At.Format("15:04:05.000"), ev.Kind, ev.ID)
		switch {
		case ev.Kind == beacon.NearTrigger:
			line += " " + ui.FormatProximity(ev.Proximity, unit)
		case ev.Evicted:
			line += " (stale)"
		}
		fmt.Fprintln(out, line)
	})
	defer unprint()

	if err := sess.Start(); err != nil {
		if !flagDemo {
			printPermissionHelp(err)
		}
		return err
	}
	defer sess.Stop()
	fmt.Fprintf(out, "watching %d beacons on %s\n", len(sess.Targets()), label)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var tick <-chan time.Time
	if flagInterval > 0 {
		ticker := time.NewTicker(flagInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-sig:
			return nil
		case err := <-sess.Failed():
			return fmt.Errorf("scan failed: %w", err)
		case <-tick:
			snap := sess.Snapshot()
			nearest := "-"
			if nb, ok := snap.NearestBeacon(); ok {
				nearest = fmt.Sprintf("%s (%s)", nb.ID, ui.FormatProximity(nb.Reading.Proximity, unit))
			}
			fmt.Fprintf(out, "seen %d/%d nearest %s\n", snap.SeenCount(), len(snap.Beacons), nearest)
		}
	}
}
