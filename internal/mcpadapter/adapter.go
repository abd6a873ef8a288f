// Package mcpadapter wires the Extension Registry and Tool Dispatcher into
// mark3labs/mcp-go's server.MCPServer, grounded on the teacher's own
// internal/mcptools/integration.go tool-rendering shape (mcp.NewTool +
// mcp.WithString/WithNumber/WithBoolean property options) and on
// SetTools's atomic-replacement semantics for pushing a fresh registry
// snapshot and triggering the library's own
// notifications/tools/list_changed delivery.
package mcpadapter

import (
	"context"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"starmcp-go/internal/capability/sqlstore"
	"starmcp-go/internal/dispatch"
	"starmcp-go/internal/events"
	"starmcp-go/internal/model"
	"starmcp-go/internal/registry"
)

// Adapter owns the mcp-go server instance and keeps its tool set in sync
// with the Extension Registry.
type Adapter struct {
	Server     *mcpserver.MCPServer
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	logger     *zap.Logger
}

// New constructs an Adapter. name/version identify this process to MCP
// clients during initialize.
func New(name, version string, reg *registry.Registry, disp *dispatch.Dispatcher, logger *zap.Logger) *Adapter {
	srv := mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)
	return &Adapter{Server: srv, dispatcher: disp, registry: reg, logger: logger}
}

// Sync pushes the registry's current tool set into the mcp-go server as one
// atomic replacement, which the library turns into a
// notifications/tools/list_changed push to every connected session.
func (a *Adapter) Sync() {
	tools := a.registry.AllTools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	serverTools := make([]mcpserver.ServerTool, 0, len(tools))
	for _, td := range tools {
		serverTools = append(serverTools, mcpserver.ServerTool{
			Tool:    renderTool(td),
			Handler: a.handlerFor(td.Name),
		})
	}
	a.Server.SetTools(serverTools...)
}

// WatchEvents subscribes to the bus's tools_changed stream and re-syncs on
// every occurrence until ctx is canceled.
func (a *Adapter) WatchEvents(ctx context.Context, bus *events.Bus) {
	ch := bus.Subscribe(events.ToolsChanged)
	defer bus.Unsubscribe(events.ToolsChanged, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			a.Sync()
		}
	}
}

func (a *Adapter) handlerFor(toolName string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if m, ok := request.Params.Arguments.(map[string]any); ok {
			args = m
		}

		result, err := a.dispatcher.Dispatch(ctx, toolName, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		content := make([]mcp.Content, 0, len(result.Content))
		for _, item := range result.Content {
			content = append(content, mcp.NewTextContent(item.Text))
		}
		if len(content) == 0 {
			content = []mcp.Content{mcp.NewTextContent("")}
		}
		return &mcp.CallToolResult{Content: content, IsError: result.IsError}, nil
	}
}

// renderTool builds an mcp.Tool for td, rendering each parameter's
// inputSchema property per spec.md §4.8: {type, description}, with
// `default` attached where declared. Array and object parameters are
// advertised with JSON types array and object, matching what the
// dispatcher accepts for them.
func renderTool(td model.ToolDescriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(td.Description)}
	for _, p := range td.Parameters {
		opts = append(opts, propertyOption(p))
	}
	return mcp.NewTool(td.Name, opts...)
}

// Shutdown builds and runs a ShutdownCoordinator for this adapter: stop
// admitting new stdio input, drain in-flight dispatches, then release
// pooled sql connections — the three phases spec.md §4.8 requires, bounded
// by timeout.
func (a *Adapter) Shutdown(ctx context.Context, timeout time.Duration) error {
	coordinator := NewShutdownCoordinator(timeout, a.logger)

	coordinator.Register(&Handler{
		Name:  "stop-transport",
		Phase: PhaseTransport,
		Fn: func(context.Context) error {
			// ServeStdio exits on its own once stdin closes or the process
			// receives its termination signal; there is nothing further to
			// tear down here beyond letting the drain phase run.
			if a.logger != nil {
				a.logger.Info("no longer admitting new tool calls")
			}
			return nil
		},
	})
	coordinator.Register(&Handler{
		Name:  "drain-dispatches",
		Phase: PhaseDrain,
		Fn:    a.dispatcher.Drain,
	})
	coordinator.Register(&Handler{
		Name:  "close-sql-pools",
		Phase: PhaseStorage,
		Fn: func(context.Context) error {
			return sqlstore.CloseAll()
		},
	})

	return coordinator.Shutdown(ctx)
}

func propertyOption(p model.ParameterSpec) mcp.ToolOption {
	description := p.Description
	if p.Default != nil {
		description += " (default: " + *p.Default + ")"
	}

	propOpts := []mcp.PropertyOption{mcp.Description(description)}
	if p.Required {
		propOpts = append(propOpts, mcp.Required())
	}

	switch p.Type {
	case model.TypeInteger, model.TypeNumber:
		return mcp.WithNumber(p.Name, propOpts...)
	case model.TypeBoolean:
		return mcp.WithBoolean(p.Name, propOpts...)
	case model.TypeArray:
		return mcp.WithArray(p.Name, propOpts...)
	case model.TypeObject:
		return mcp.WithObject(p.Name, propOpts...)
	default:
		return mcp.WithString(p.Name, propOpts...)
	}
}
