package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/myhome/internal/config"
	"github.com/muurk/myhome/internal/discovery"
	"github.com/muurk/myhome/internal/ui"
)

// Config and locate flags
var (
	forceInit     bool
	locateTimeout time.Duration
	locateSave    bool
	locateName    string
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find gateways on the local network via mDNS",
	Long: `Browse mDNS for OpenWebNet gateways (F454, F455, MH200, MyHomeServer).

With --name, browsing stops at the first gateway whose instance name or
hostname contains the given text.

With --save, the gateways found are recorded in the config file, and when
exactly one is found it becomes the configured gateway.`,
	Example: `  myhome locate
  myhome locate --duration 10s --save
  myhome locate --name f454 --save`,
	Args: cobra.NoArgs,
	RunE: runLocate,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration in effect",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configZoneCmd = &cobra.Command{
	Use:     "zone <zone> <nickname>",
	Short:   "Give a zone a nickname",
	Example: `  myhome config zone 1 "Living room"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigZone,
}

func init() {
	locateCmd.Flags().DurationVar(&locateTimeout, "duration", 0, "Browse time (default from config, then 5s)")
	locateCmd.Flags().BoolVar(&locateSave, "save", false, "Record the gateways found in the config file")
	locateCmd.Flags().StringVar(&locateName, "name", "", "Stop at the first gateway whose name contains this text")
	addFormatFlag(locateCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd, configShowCmd, configZoneCmd)
	rootCmd.AddCommand(locateCmd, configCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	browse := locateTimeout
	if browse == 0 {
		browse = time.Duration(registry.Discover.Timeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), browse+5*time.Second)
	defer cancel()

	gateways, err := locateGateways(ctx, browse, locateName)
	if err != nil {
		return fmt.Errorf("mDNS browse failed: %w", err)
	}

	if done, ferr := printStructured(cmd.OutOrStdout(), gateways); done || ferr != nil {
		return ferr
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Gateway discovery", "myhome locate",
		ui.Param{Key: "Service", Value: discovery.ServiceType},
		ui.Param{Key: "Duration", Value: browse.String()},
	)

	if len(gateways) == 0 {
		p.PrintWarning("No gateways found",
			ui.Param{Key: "Hint", Value: "use --host if mDNS is disabled"},
		)
		return nil
	}

	for i, gw := range gateways {
		p.Println(fmt.Sprintf("  %d. %s", i+1, gw.String()))
	}
	p.Newline()

	if !locateSave {
		return nil
	}
	for _, gw := range gateways {
		registry.RecordGateway(gw.Name, gw.IP, gw.Port)
	}
	if len(gateways) == 1 {
		registry.UseGateway(gateways[0].IP, gateways[0].Port)
	}
	if err := registry.Save(); err != nil {
		return err
	}
	p.PrintSuccess("Saved", ui.Param{Key: "Config", Value: registry.Path()})
	return nil
}

// locateGateways browses for the whole duration, or until a gateway matching
// name shows up when name is set.
func locateGateways(ctx context.Context, browse time.Duration, name string) ([]*discovery.Gateway, error) {
	if name == "" {
		return discovery.Locate(ctx, browse)
	}

	scanner := discovery.NewScanner()
	if browse > 0 {
		scanner.Timeout = browse
	}
	gw, err := scanner.WaitForGateway(ctx, name)
	if err != nil {
		return nil, err
	}
	return []*discovery.Gateway{gw}, nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}

	force := forceInit
	if _, err := os.Stat(path); err == nil && !force {
		force = ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Overwrite configuration",
			[]string{path + " already exists", "Zone nicknames and bridge settings will be reset"})
		if !force {
			return nil
		}
	}

	if _, err := config.CreateDefaultConfig(path, force); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration written", ui.Param{Key: "Path", Value: path})
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := registry.Path()
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(out, "# %s (not created yet, showing defaults)\n", path)
	} else {
		fmt.Fprintf(out, "# %s\n", path)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(registry); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigZone(cmd *cobra.Command, args []string) error {
	registry.SetZoneNickname(args[0], args[1])
	if err := registry.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "zone %s is now %q\n", args[0], args[1])
	return nil
}
