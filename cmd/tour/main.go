package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-tour/internal/geoutil"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/server"
	"github.com/joeblew999/plat-tour/internal/service"
)

// Options defines all CLI flags and env vars for the tour server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level, --log-format
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir   string `doc:"Directory for the catalog and preferences" default:".data"`
	WebDir    string `doc:"Path to web/ directory" default:"web"`
	Config    string `doc:"Optional YAML configuration file" short:"c"`
	LogLevel  string `doc:"Log level: trace, debug, info, warn, error" default:"info"`
	LogFormat string `doc:"Log format: json or console" default:"console"`
}

func newServer(opts *Options) *server.Server {
	logging.Init(logging.Config{Level: opts.LogLevel, Format: opts.LogFormat})
	srv, err := server.New(server.Config{
		Host:       opts.Host,
		Port:       strconv.Itoa(opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		ConfigFile: opts.Config,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpSrv *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			srv = newServer(opts)
			log := logging.Component("main")

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-tour server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Pages:   %s/explore, %s/plan\n", baseURL, baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpSrv = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		})

		hooks.OnStop(func() {
			if httpSrv == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(ctx)
			if err := srv.Close(); err != nil {
				log := logging.Component("main")
				log.Warn().Err(err).Msg("close failed")
			}
		})
	})

	cli.Root().Use = "tour"
	cli.Root().Short = "Tourism resource map with clustered markers and itinerary routes"
	cli.Root().Version = server.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// import subcommand: load a JSON array of resources into the DuckDB catalog
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import resources from a JSON file into the local catalog",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			path, _ := cmd.Flags().GetString("file")
			if err := importFile(opts, path); err != nil {
				fmt.Fprintf(os.Stderr, "Error importing %s: %v\n", path, err)
				os.Exit(1)
			}
		}),
	}
	importCmd.Flags().StringP("file", "f", "resources.json", "JSON file with an array of resources")
	cli.Root().AddCommand(importCmd)

	// distance subcommand: great-circle distance between two points
	distanceCmd := &cobra.Command{
		Use:   "distance LAT1 LON1 LAT2 LON2",
		Short: "Print the distance in km between two coordinates",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c [4]float64
			for i, a := range args {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				c[i] = v
			}
			fmt.Println(geoutil.Distance(c[0], c[1], c[2], c[3]))
			return nil
		},
	}
	cli.Root().AddCommand(distanceCmd)

	cli.Run()
}

func importFile(opts *Options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []service.PointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	srv := newServer(opts)
	defer srv.Close()
	catalog := srv.Catalog()
	if catalog == nil {
		return errors.New("no local catalog: a remote resource service is configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	n, err := catalog.Import(ctx, records)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d resources into %s\n", n, opts.DataDir)
	return nil
}
