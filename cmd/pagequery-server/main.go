// pagequery-server loads an HTML document and serves pagequery sessions
// over websocket connections.
//
// Settings are read from flags, PAGEQUERY_* environment variables and an
// optional YAML config file, in that order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chromedp/pagequery"
	"github.com/chromedp/pagequery/device"
)

const shutdownTimeout = 5 * time.Second

// config holds the server settings.
type config struct {
	Listen        string        `mapstructure:"listen"`
	HTML          string        `mapstructure:"html"`
	Device        string        `mapstructure:"device"`
	FrameInterval time.Duration `mapstructure:"frame-interval"`
	LogLevel      string        `mapstructure:"log-level"`
	Debug         bool          `mapstructure:"debug"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, _ := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the server command with its own viper instance. The
// returned config is filled in before RunE runs.
func newRootCmd() (*cobra.Command, *config) {
	v := viper.New()
	cfg := new(config)
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "pagequery-server",
		Short:         "Serve DOM queries and waits against an HTML document",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(v, cfgFile); err != nil {
				return err
			}
			if err := v.Unmarshal(cfg); err != nil {
				return fmt.Errorf("could not decode config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return run(cmd.Context(), cfg, logger, nil)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./pagequery.yaml)")
	flags := cmd.Flags()
	flags.StringP("listen", "l", "localhost:9333", "listen address")
	flags.String("html", "", "HTML document to serve, - for stdin")
	flags.String("device", "", "emulated device name, eg \"iPhone X\"")
	flags.Duration("frame-interval", pagequery.DefaultFrameInterval, "rendering frame interval")
	flags.String("log-level", "info", "log level")
	flags.Bool("debug", false, "log raw websocket messages")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd, cfg
}

// loadConfig reads the config file, when there is one, and binds the
// environment.
func loadConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pagequery")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("PAGEQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("could not read config file: %w", err)
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// loadDocument parses the configured HTML document.
func loadDocument(cfg *config) (*pagequery.Document, error) {
	opts := []pagequery.DocumentOption{
		pagequery.WithFrameInterval(cfg.FrameInterval),
	}
	if cfg.Device != "" {
		dev, ok := device.Lookup(cfg.Device)
		if !ok {
			return nil, fmt.Errorf("unknown device %q", cfg.Device)
		}
		opts = append(opts, pagequery.WithDevice(dev))
	}

	var r io.Reader
	switch cfg.HTML {
	case "":
		return nil, errors.New("no HTML document, see --html")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(cfg.HTML)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return pagequery.Parse(r, opts...)
}

// run serves sessions until ctx is done. ready, when not nil, is called
// with the listen address once the server accepts connections.
func run(ctx context.Context, cfg *config, logger *zap.Logger, ready func(net.Addr)) error {
	sugar := logger.Sugar()

	doc, err := loadDocument(cfg)
	if err != nil {
		return err
	}
	e := pagequery.New(doc,
		pagequery.WithLogf(sugar.Infof),
		pagequery.WithDebugf(sugar.Debugf),
		pagequery.WithErrorf(sugar.Errorf),
	)
	h := &pagequery.Handler{
		Engine: e,
		SessionOptions: []pagequery.SessionOption{
			pagequery.WithSessionLogf(sugar.Infof),
			pagequery.WithSessionDebugf(sugar.Debugf),
			pagequery.WithSessionErrorf(sugar.Errorf),
		},
		Errorf: sugar.Errorf,
	}
	if cfg.Debug {
		h.ConnOptions = append(h.ConnOptions, pagequery.WithConnDebugf(sugar.Debugf))
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	sugar.Infow("serving", "addr", ln.Addr().String(), "html", cfg.HTML, "device", cfg.Device)
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
