package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/protocol"
)

// Actuator performs commands received from the gesture service.
type Actuator interface {
	Perform(ctx context.Context, cmd *protocol.Command) error
}

// LogActuator only logs commands. It is used when no plugin is configured.
type LogActuator struct {
	Logger *slog.Logger
}

// Perform implements Actuator.
func (a LogActuator) Perform(_ context.Context, cmd *protocol.Command) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"action", cmd.Action.String(), "session_id", cmd.SessionID}
	if cmd.Magnitude != nil {
		attrs = append(attrs, "magnitude", *cmd.Magnitude)
	}
	logger.Info("command", attrs...)
	return nil
}

// PluginActuator runs one plugin per command.
type PluginActuator struct {
	plugin   *Plugin
	executor *Executor
	logger   *slog.Logger
}

// NewPluginActuator looks up name in m. The plugin must declare every
// action the service can send.
func NewPluginActuator(m *Manager, name string, e *Executor, logger *slog.Logger) (*PluginActuator, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", name, err)
	}
	for _, k := range RequiredActions() {
		if !p.Manifest.Supports(k) {
			return nil, fmt.Errorf("plugin %q does not support action %q", name, k)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginActuator{
		plugin:   p,
		executor: e,
		logger:   logger.With("plugin", name),
	}, nil
}

// Perform implements Actuator.
func (a *PluginActuator) Perform(ctx context.Context, cmd *protocol.Command) error {
	req := &Request{
		Action:    cmd.Action.PluginAction(),
		Command:   cmd.Action.String(),
		Magnitude: cmd.Magnitude,
		SessionID: cmd.SessionID,
	}

	resp, err := a.executor.Execute(ctx, a.plugin, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: %s", a.plugin.Manifest.Name, resp.Error)
	}
	a.logger.Debug("command performed", "action", req.Action)
	return nil
}

// RequiredActions returns the plugin action names an actuator plugin must
// declare.
func RequiredActions() []string {
	kinds := action.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.PluginAction())
	}
	return names
}
