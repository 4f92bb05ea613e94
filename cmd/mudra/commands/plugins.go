package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List actuator plugins",
	Long: `List the plugins discovered in client.plugin_dir and whether each one
performs every media action the client can receive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		manager := plugin.NewManager(cfg.Client.PluginDir, logger)
		if err := manager.Discover(); err != nil {
			return err
		}
		plugins := manager.List()
		if len(plugins) == 0 {
			fmt.Printf("No plugins found in %s.\n", manager.PluginDir())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tCOMPLETE\tACTIONS")
		for _, p := range plugins {
			complete := "yes"
			for _, a := range plugin.RequiredActions() {
				if !p.Manifest.Supports(a) {
					complete = "no"
					break
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Manifest.Name, p.Manifest.Version, complete, strings.Join(p.Manifest.Actions, ","))
		}
		return w.Flush()
	},
}
