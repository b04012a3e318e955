package adapter

import (
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"taskrouter/internal/config"
	"taskrouter/internal/types"
)

// Entry pairs an adapter with its capability declaration, so callers can
// inspect tool metadata without any runtime type inspection.
type Entry struct {
	Adapter    Adapter
	Capability types.Capability
}

// Factory is the name-keyed registry of adapters, built once from
// configuration and read-only thereafter.
type Factory struct {
	entries map[string]Entry
	order   []string // names sorted by priority, then name
}

// NewFactory builds one adapter per configured tool. Tools with an
// endpoint become HTTP-backed; everything else is subprocess-backed, which
// also covers unconfigured tools (they report a configuration failure at
// execution time rather than here).
func NewFactory(cfg *config.Config, client *http.Client, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	execLog := NewExecLog(cfg.LogDir, logger)

	entries := make(map[string]Entry, len(cfg.Tools))
	ordered := make([]config.ToolConfig, len(cfg.Tools))
	copy(ordered, cfg.Tools)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	order := make([]string, 0, len(ordered))
	for _, tool := range ordered {
		var a Adapter
		if tool.Endpoint != "" {
			a = NewHTTPAdapter(tool, client, execLog, logger.Named(tool.Name))
		} else {
			a = NewSubprocessAdapter(tool, execLog, logger.Named(tool.Name))
		}
		entries[tool.Name] = Entry{Adapter: a, Capability: tool.Capability()}
		order = append(order, tool.Name)
		logger.Debug("registered tool adapter",
			zap.String("tool", tool.Name),
			zap.Bool("http", tool.Endpoint != ""))
	}

	return &Factory{entries: entries, order: order}
}

// Get returns the adapter and capability for a tool name.
func (f *Factory) Get(name string) (Entry, error) {
	entry, ok := f.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry, nil
}

// All returns every entry in priority order (lower priority value first).
func (f *Factory) All() []Entry {
	entries := make([]Entry, 0, len(f.order))
	for _, name := range f.order {
		entries = append(entries, f.entries[name])
	}
	return entries
}

// Names returns the registered tool names in priority order.
func (f *Factory) Names() []string {
	names := make([]string, len(f.order))
	copy(names, f.order)
	return names
}
