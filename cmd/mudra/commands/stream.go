package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/client"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/transport"
)

// Source kinds for client.source.
const (
	sourceReplay    = "replay"
	sourceExtractor = "process"
)

var streamFlags struct {
	server string
	replay string
	loop   bool
	fps    int
	plugin string
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream landmarks to a server and perform its commands",
	Long: `Read landmark frames from a replay file or an extractor process, send them
to a mudra server at the configured rate and hand every command it returns to
an actuator plugin, or log it when no plugin is configured.

The server URL selects the transport: ws:// or wss:// for WebSocket, tcp://
for the length-framed stream.`,
	RunE: runStream,
}

func init() {
	f := streamCmd.Flags()
	f.StringVar(&streamFlags.server, "server", "", "server URL (overrides client.server_url)")
	f.StringVar(&streamFlags.replay, "replay", "", "replay file; selects the replay source")
	f.BoolVar(&streamFlags.loop, "loop", false, "restart the replay file at its end")
	f.IntVar(&streamFlags.fps, "fps", 0, "frames per second (overrides client.fps)")
	f.StringVar(&streamFlags.plugin, "plugin", "", "actuator plugin name (overrides client.plugin)")
}

func runStream(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	cc := cfg.Client
	if streamFlags.server != "" {
		cc.ServerURL = streamFlags.server
	}
	if streamFlags.replay != "" {
		cc.Source = sourceReplay
		cc.ReplayPath = streamFlags.replay
	}
	if cmd.Flags().Changed("loop") {
		cc.Loop = streamFlags.loop
	}
	if streamFlags.fps > 0 {
		cc.FPS = streamFlags.fps
	}
	if streamFlags.plugin != "" {
		cc.Plugin = streamFlags.plugin
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	enc, err := protocol.ParseEncoding(cc.Encoding)
	if err != nil {
		return err
	}
	codec, err := protocol.NewCodec(enc)
	if err != nil {
		return err
	}

	src, err := openSource(cc, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	actuator, err := openActuator(cc, logger)
	if err != nil {
		return err
	}

	conn, err := dial(ctx, cc.ServerURL, codec.Encoding())
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		Source:   src,
		Codec:    codec,
		Actuator: actuator,
		FPS:      cc.FPS,
		Logger:   logger,
		Metrics:  metrics.New(),
	})
	if err != nil {
		conn.Close()
		return err
	}
	return c.Run(ctx, conn)
}

func openSource(cc config.ClientConfig, logger *slog.Logger) (source.Source, error) {
	switch cc.Source {
	case sourceReplay:
		if cc.ReplayPath == "" {
			return nil, fmt.Errorf("replay source needs client.replay_path or --replay")
		}
		r, err := source.NewReplay(cc.ReplayPath, cc.Loop)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying landmarks", "path", cc.ReplayPath, "loop", cc.Loop)
		return r, nil
	case sourceExtractor:
		e, err := source.NewExtractor(cc.ExtractorCommand, cc.IdleTimeout, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown client.source %q (want %s or %s)", cc.Source, sourceReplay, sourceExtractor)
}

func openActuator(cc config.ClientConfig, logger *slog.Logger) (plugin.Actuator, error) {
	if cc.Plugin == "" {
		return plugin.LogActuator{Logger: logger}, nil
	}
	manager := plugin.NewManager(cc.PluginDir, logger)
	if err := manager.Discover(); err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}
	a, err := plugin.NewPluginActuator(manager, cc.Plugin, plugin.NewExecutor(plugin.DefaultTimeout), logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// dial connects to a ws://, wss:// or tcp:// server URL.
func dial(ctx context.Context, rawURL string, enc protocol.Encoding) (transport.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		q := u.Query()
		q.Set("encoding", string(enc))
		u.RawQuery = q.Encode()
		ws, err := transport.DialWebSocket(ctx, u.String(), enc.Binary())
		if err != nil {
			return nil, err
		}
		return ws, nil
	case "tcp":
		f, err := transport.DialFramed(ctx, u.Host)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("server url %q: unsupported scheme %q", rawURL, u.Scheme)
}
