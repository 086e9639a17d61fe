// Package main is the plugrid command line: discover, validate, and load
// plugin modules.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dshills/plugrid/internal/config"
	"github.com/dshills/plugrid/internal/plugin"
	"github.com/dshills/plugrid/internal/plugin/luamod"
)

// Version information (set via ldflags during build).
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var verbose bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.BoolVar(&verbose, "verbose", false, "Log host events")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "plugrid - plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: plugrid [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  discover   List candidate module paths\n")
		fmt.Fprintf(os.Stderr, "  validate   Register modules and resolve the dependency graph\n")
		fmt.Fprintf(os.Stderr, "  load       Load all plugins, passing remaining args to them\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("plugrid %s\n", version)
		return 0
	}

	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	host := plugin.NewHost(
		plugin.WithModuleLoader(luamod.NewLoader()),
		plugin.WithSearchPaths(cfg.SearchPaths...),
	)
	defer host.Teardown()

	if verbose {
		host.Subscribe(func(event plugin.HostEvent) {
			switch {
			case event.Err != nil:
				log.Printf("%s %s%s: %v", event.Type, event.Plugin, event.Path, event.Err)
			case event.Path != "":
				log.Printf("%s %s (%s)", event.Type, event.Plugin, event.Path)
			default:
				log.Printf("%s %s", event.Type, event.Plugin)
			}
		})
	}

	switch cmd := flag.Arg(0); cmd {
	case "discover":
		return runDiscover(host)
	case "validate":
		return runValidate(host, cfg)
	case "load":
		return runLoad(host, cfg, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		flag.Usage()
		return 2
	}
}

func runDiscover(host *plugin.Host) int {
	for _, path := range host.DiscoverPaths() {
		fmt.Println(path)
	}
	return 0
}

// register performs a full path registration and applies the disabled list.
func register(host *plugin.Host, cfg config.Config) bool {
	ok := host.RegisterPaths(host.DiscoverPaths())
	for _, d := range host.Descriptors() {
		if cfg.IsDisabled(d.ID()) {
			d.SetEnabled(false)
		}
	}
	return ok
}

func runValidate(host *plugin.Host, cfg config.Config) int {
	clean := register(host, cfg)
	reportErrors(host)

	order, ok := host.ResolveGraph()
	if !ok {
		reportErrors(host)
		return 1
	}
	for _, id := range order {
		fmt.Println(id)
	}
	if !clean {
		return 1
	}
	return 0
}

func runLoad(host *plugin.Host, cfg config.Config, args []string) int {
	register(host, cfg)
	reportErrors(host)

	if !host.LoadPlugins(args) {
		reportErrors(host)
		return 1
	}

	for _, d := range host.Descriptors() {
		fmt.Printf("%s\t%s\n", d.ID(), d.State())
	}
	return 0
}

func reportErrors(host *plugin.Host) {
	for _, msg := range host.LastErrors() {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
}
