package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/u13596216391/OCR-v1/pkg/client"
	"github.com/u13596216391/OCR-v1/pkg/endpoint"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

// defaultOrigin is where the development proxy listens; it anchors the
// same-origin "/api" base URL.
const defaultOrigin = "http://localhost:8082"

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the CLI's dependencies and global flag values.
type app struct {
	fs     afero.Fs
	in     io.Reader
	out    io.Writer
	lookup endpoint.LookupFunc
	v      *viper.Viper
	logger *zap.Logger

	cfgFile  string
	baseURL  string
	origin   string
	token    string
	certDir  string
	format   string
	output   string
	timeout  time.Duration
	insecure bool
	verbose  bool
}

func newApp() *app {
	return &app{
		fs:     afero.NewOsFs(),
		in:     os.Stdin,
		out:    os.Stdout,
		lookup: os.LookupEnv,
		v:      viper.New(),
		logger: zap.NewNop(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ocr",
		Short: "OCR document pipeline CLI",
		Long: `ocr drives the OCR document backend: upload PDFs, list their
processing state, export raw OCR as Label Studio tasks, submit corrected
annotations and ingest the result into RAGFlow.

The API base URL comes from --base-url, then OCR_API_BASE_URL, then
base_url in ~/.ocr/config.yaml, and finally defaults to /api on --origin.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ~/.ocr/config.yaml)")
	pf.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides "+endpoint.EnvVar+")")
	pf.StringVar(&a.origin, "origin", "", "origin for a root-relative base URL (default "+defaultOrigin+")")
	pf.StringVar(&a.token, "token", "", "Bearer token sent with every request")
	pf.StringVar(&a.certDir, "cert-dir", "", "Directory with ca.pem (and optional cert.pem/key.pem) for a TLS backend")
	pf.StringVar(&a.format, "format", "json", "Output format: json, yaml or text")
	pf.StringVarP(&a.output, "output", "o", "", "Write the raw response body to this file instead of stdout")
	pf.DurationVar(&a.timeout, "timeout", 0, "Per-command timeout (e.g. 30s); 0 waits indefinitely")
	pf.BoolVar(&a.insecure, "insecure", false, "Skip TLS certificate verification (development only)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log each HTTP request")

	root.AddCommand(
		newDocumentsCmd(a),
		newUploadCmd(a),
		newTasksCmd(a),
		newImportCmd(a),
		newCorrectCmd(a),
		newIngestCmd(a),
		newRAGFlowCmd(a),
		newResolveCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads .env and the config file, then builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		a.v.AddConfigPath(filepath.Join(home, ".ocr"))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}
	a.v.SetFs(a.fs)
	a.v.SetDefault("origin", defaultOrigin)
	if err := a.v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if a.origin == "" {
		a.origin = a.v.GetString("origin")
	}
	if a.token == "" {
		a.token = a.v.GetString("token")
	}
	if a.certDir == "" {
		a.certDir = a.v.GetString("cert_dir")
	}

	if a.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		a.logger = logger
	}
	return nil
}

// resolveBaseURL applies --base-url, then the environment, then the config
// file, then the default.
func (a *app) resolveBaseURL() (endpoint.BaseURL, string) {
	if a.baseURL != "" {
		return endpoint.BaseURL(a.baseURL), "flag"
	}
	if v, ok := a.lookup(endpoint.EnvVar); ok && v != "" {
		return endpoint.Resolve(a.lookup), "env"
	}
	if s := a.v.GetString("base_url"); s != "" {
		return endpoint.Resolve(func(string) (string, bool) { return s, true }), "config"
	}
	return endpoint.Resolve(a.lookup), "default"
}

func (a *app) newClient() (*client.Client, error) {
	// Both replace the TLS transport; combining them would silently drop the CA.
	if a.certDir != "" && a.insecure {
		return nil, errors.New("--cert-dir and --insecure cannot be used together")
	}
	base, _ := a.resolveBaseURL()
	opts := []client.Option{
		client.WithOrigin(a.origin),
		client.WithLogger(a.logger),
		client.WithUserAgent("ocr-cli/" + version),
	}
	if a.certDir != "" {
		opts = append(opts, client.WithCertDir(a.certDir))
	}
	if a.insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if a.token != "" {
		opts = append(opts, client.WithBearerToken(a.token))
	}
	return client.New(base, opts...)
}

// commandContext returns the command context bounded by --timeout.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

// ── resolve ──────────────────────────────────────────────────────────────────

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the API base URL requests will be sent to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, source := a.resolveBaseURL()
			c, err := a.newClient()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Base URL:  %s\n", base)
			fmt.Fprintf(a.out, "Source:    %s\n", source)
			fmt.Fprintf(a.out, "Effective: %s\n", c.BaseURL())
			return nil
		},
	}
}

// ── version ──────────────────────────────────────────────────────────────────

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "ocr %s\n", version)
		},
	}
}
