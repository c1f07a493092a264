package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *ToolRegistry) Execute(ctx context.Context, name string, call Call) (*Result, error) {
	logger.InfoCF("tool", "Tool execution started",
		map[string]interface{}{
			"tool":      name,
			"channel":   call.Channel,
			"chat_id":   call.ChatID,
			"sender_id": call.SenderID,
			"input":     utils.Preview(call.Input, 80),
		})

	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found",
			map[string]interface{}{
				"tool": name,
			})
		return nil, fmt.Errorf("tool '%s' not found", name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, call)
	duration := time.Since(start)

	if err != nil {
		logger.ErrorCF("tool", "Tool execution failed",
			map[string]interface{}{
				"tool":        name,
				"duration_ms": duration.Milliseconds(),
				"error":       err.Error(),
			})
	} else {
		fields := map[string]interface{}{
			"tool":        name,
			"duration_ms": duration.Milliseconds(),
		}
		if result != nil {
			fields["result_length"] = len(result.Text)
			fields["attachment"] = result.Attachment != nil
			if result.Err != nil {
				fields["fallback_cause"] = result.Err.Error()
			}
		}
		logger.InfoCF("tool", "Tool execution completed", fields)
	}

	return result, err
}

// List returns the registered tool names in sorted order.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GetSummaries returns "name - description" lines.
func (r *ToolRegistry) GetSummaries() []string {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]string, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, fmt.Sprintf("- `%s` - %s", name, r.tools[name].Description()))
	}
	return summaries
}
