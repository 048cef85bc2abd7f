package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/logging"
	"github.com/muurk/myhome/internal/openwebnet"
	"github.com/muurk/myhome/internal/ui"
)

// reportedError has already been printed as a failure box; main only sets
// the exit code.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func fail(p *ui.Printer, title string, err error) error {
	p.PrintError(title, err)
	return reportedError{err}
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)

	addFormatFlag(statusCmd)
	addFormatFlag(scanCmd)
	scanCmd.Flags().StringVar(&scanFilter, "filter", "all", "Devices to list (all, configured, unconfigured)")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print monitor events as they arrive",
	Long: `Open the monitor session and print every frame the gateway broadcasts,
with thermoregulation frames decoded. Runs until interrupted.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOwnFrames: "true"},
	RunE:        runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	addr := gatewayAddr(cmd)

	client, _, err := connect(cmd.Context(), cmd, func(n openwebnet.Notification) {
		switch n.Kind {
		case openwebnet.NotifyMonitoring:
			fmt.Fprintf(out, "%s monitoring %s\n", n.Time.Format(time.TimeOnly), addr)
		case openwebnet.NotifyEvent:
			line := n.Time.Format(time.TimeOnly) + " " + logging.FormatFrame(openwebnet.ModeMonitor.String(), logging.DirectionIn, n.Frame)
			if r, ok := engine.Decode(n.Frame); ok {
				line += "  " + ui.DescribeReading(r, registry.ZoneName)
			}
			fmt.Fprintln(out, line)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer client.Close()

	select {
	case <-cmd.Context().Done():
		return nil
	case <-client.Done():
		if err := client.Monitor().Err(); err != nil {
			return fmt.Errorf("monitor connection ended: %w", err)
		}
		return nil
	}
}

var statusCmd = &cobra.Command{
	Use:   "status <zone>",
	Short: "Query the thermoregulation status of a zone",
	Example: `  myhome status 1
  myhome status 1 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	zone := args[0]
	p := ui.NewPrinter(cmd.OutOrStdout())

	client, eng, err := connect(cmd.Context(), cmd, nil)
	if err != nil {
		return fail(p, "Cannot reach gateway", err)
	}
	defer client.Close()

	ctx, cancel := operation(cmd)
	defer cancel()

	status, err := eng.Status(ctx, zone)
	if done, ferr := printStructured(cmd.OutOrStdout(), status); done || ferr != nil {
		if ferr != nil {
			return ferr
		}
		return err
	}

	p.PrintHeader("Zone status", "myhome status "+zone,
		ui.Param{Key: "Gateway", Value: gatewayAddr(cmd)},
		ui.Param{Key: "Zone", Value: registry.ZoneName(zone)},
	)
	if len(status) > 0 {
		p.Println(ui.RenderZoneTable(status, registry.ZoneName))
		p.Newline()
	}
	if err != nil {
		return fail(p, "Status query failed", err)
	}
	return nil
}

var setTempCmd = &cobra.Command{
	Use:   "set-temp <zone> <celsius>",
	Short: "Set the set point of a zone",
	Long: fmt.Sprintf(`Send a manual set point to a zone. The temperature is rounded to tenths
of a degree and must lie between %.0f and %.0f °C.`, engine.MinSetPoint, engine.MaxSetPoint),
	Example: `  myhome set-temp 1 21.5`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSetTemp,
}

func runSetTemp(cmd *cobra.Command, args []string) error {
	zone := args[0]
	celsius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q: %w", args[1], err)
	}
	if _, err := engine.SetTemperatureFrame(zone, celsius); err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	client, eng, err := connect(cmd.Context(), cmd, nil)
	if err != nil {
		return fail(p, "Cannot reach gateway", err)
	}
	defer client.Close()

	ctx, cancel := operation(cmd)
	defer cancel()

	if err := eng.SetTemperature(ctx, zone, celsius); err != nil {
		return fail(p, "Set point rejected", err)
	}
	p.PrintSuccess("Set point accepted",
		ui.Param{Key: "Zone", Value: registry.ZoneName(zone)},
		ui.Param{Key: "Set point", Value: fmt.Sprintf("%.1f°C", celsius)},
	)
	return nil
}

var setModeCmd = &cobra.Command{
	Use:       "set-mode <zone> <" + strings.Join(engine.Modes, "|") + ">",
	Short:     "Change the operating mode of a zone",
	Example:   `  myhome set-mode 1 auto`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: engine.Modes,
	RunE:      runSetMode,
}

func runSetMode(cmd *cobra.Command, args []string) error {
	zone, mode := args[0], strings.ToLower(args[1])
	if _, err := engine.ModeFrame(zone, mode); err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	client, eng, err := connect(cmd.Context(), cmd, nil)
	if err != nil {
		return fail(p, "Cannot reach gateway", err)
	}
	defer client.Close()

	ctx, cancel := operation(cmd)
	defer cancel()

	if err := eng.SetMode(ctx, zone, mode); err != nil {
		return fail(p, "Mode change rejected", err)
	}
	p.PrintSuccess("Mode changed",
		ui.Param{Key: "Zone", Value: registry.ZoneName(zone)},
		ui.Param{Key: "Mode", Value: mode},
	)
	return nil
}

var sendCmd = &cobra.Command{
	Use:   "send <frame>",
	Short: "Send one raw frame on a command session",
	Long: `Send a raw OpenWebNet frame and print every frame received until the
gateway answers ACK or NACK.`,
	Example: `  myhome send '*#4*1##'
  myhome send '*1*1*11##'`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	frame := args[0]
	if frames, rest := openwebnet.SplitFrames(frame); len(frames) != 1 || frames[0] != frame || rest != "" {
		return fmt.Errorf("%q is not a single frame", frame)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	client, eng, err := connect(cmd.Context(), cmd, nil)
	if err != nil {
		return fail(p, "Cannot reach gateway", err)
	}
	defer client.Close()

	ctx, cancel := operation(cmd)
	defer cancel()

	frames, result, err := eng.Raw(ctx, frame)
	for _, f := range frames {
		p.Println(logging.FormatFrame(openwebnet.ModeCommand.String(), logging.DirectionIn, f))
	}
	if err != nil {
		return fail(p, "Command failed", err)
	}
	if result == engine.ResultNack {
		return fail(p, "Gateway answered NACK", engine.ErrNack)
	}
	p.PrintSuccess("Gateway answered ACK",
		ui.Param{Key: "Frame", Value: frame},
		ui.Param{Key: "Replies", Value: strconv.Itoa(len(frames))},
	)
	return nil
}

var scanFilter string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the device ids known to the gateway",
	Long: `Open a configuration session and ask the gateway for its device list.
Use --filter to restrict the list to configured or unconfigured devices.`,
	Example: `  myhome scan
  myhome scan --filter unconfigured --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	filter, err := engine.ParseScanFilter(scanFilter)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	client, eng, err := connect(cmd.Context(), cmd, nil)
	if err != nil {
		return fail(p, "Cannot reach gateway", err)
	}
	defer client.Close()

	ctx, cancel := operation(cmd)
	defer cancel()

	ids, err := eng.Scan(ctx, filter)
	if done, ferr := printStructured(cmd.OutOrStdout(), ids); done || ferr != nil {
		if ferr != nil {
			return ferr
		}
		return err
	}

	p.PrintHeader("Device scan", "myhome scan --filter "+filter.String(),
		ui.Param{Key: "Gateway", Value: gatewayAddr(cmd)},
	)
	if err != nil {
		return fail(p, "Scan failed", err)
	}
	for i, id := range ids {
		p.Println(fmt.Sprintf("  %3d. %d", i+1, id))
	}
	if len(ids) > 0 {
		p.Newline()
	}
	p.PrintSuccess("Scan complete", ui.Param{Key: "Devices", Value: strconv.Itoa(len(ids))})
	return nil
}

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Live dashboard of zone readings and monitor events",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOwnFrames: "true"},
	RunE:        runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	feed := ui.NewFeed(256)
	client, _, err := connect(cmd.Context(), cmd, feed.Push)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", gatewayAddr(cmd), err)
	}
	defer client.Close()

	go func() {
		<-client.Done()
		feed.Close()
	}()

	err = ui.RunWatch(cmd.Context(), ui.NewWatchModel(gatewayAddr(cmd), registry.ZoneName, feed))
	if dropped := feed.Dropped(); dropped > 0 {
		logging.Warn("Dashboard dropped monitor events", zap.Int("count", dropped))
	}
	return err
}
