// Command agentcore-demo wires the core subsystems together end to end
// against a mock LLM and a scratch directory: plan (PLAN) with a
// scaffold decision → mission (MISSION) with a checkpointed autonomy
// iteration, a verified shell command, and a checkpoint restore —
// printing a count of the emitted events per type at the end.
//
// It never calls a real provider: demoLLMClient below scripts a single
// tool_use-then-end_turn exchange so the example runs offline.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kalyank1144/agentcore/autonomy"
	"github.com/kalyank1144/agentcore/checkpoint"
	"github.com/kalyank1144/agentcore/command"
	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/internal/idgen"
	"github.com/kalyank1144/agentcore/llm"
	"github.com/kalyank1144/agentcore/loop"
	"github.com/kalyank1144/agentcore/metrics"
	"github.com/kalyank1144/agentcore/modestage"
	"github.com/kalyank1144/agentcore/scaffold"
	"github.com/kalyank1144/agentcore/tracing"
)

const taskID = "demo-task-001"

// newSpanExporter builds an OTLP gRPC exporter when OTEL_EXPORTER_OTLP_ENDPOINT
// is set, otherwise a stdout exporter so the demo runs offline by default.
func newSpanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
	return otlptracegrpc.New(ctx, opts...)
}

func main() {
	ctx := context.Background()

	scratchDir, err := os.MkdirTemp("", "agentcore-demo-")
	if err != nil {
		log.Fatalf("create scratch dir: %v", err)
	}
	defer os.RemoveAll(scratchDir)

	store := event.NewMemoryStore()
	ids := idgen.NewDefault()
	bus := event.NewBus(store, ids)

	reg := prometheus.NewRegistry()
	metricsCollector := metrics.New(reg)

	exporter, err := newSpanExporter(ctx)
	if err != nil {
		log.Fatalf("create trace exporter: %v", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	defer func() { _ = tp.Shutdown(ctx) }()
	otel.SetTracerProvider(tp)
	otb := tracing.NewOTelBus(tp.Tracer("agentcore-demo"))
	otb.Attach(bus)

	fmt.Println("=== agentcore demo ===")
	fmt.Println()

	machine := modestage.New(taskID, bus)
	checkpoints, err := checkpoint.NewManager(filepath.Join(scratchDir, "checkpoints"), bus, ids)
	if err != nil {
		log.Fatalf("create checkpoint manager: %v", err)
	}
	checkpoints.Metrics = metricsCollector

	fmt.Println("-- PLAN: asking the model what to do --")
	if _, err := machine.SetMode(ctx, event.ModePlan); err != nil {
		log.Fatalf("set mode PLAN: %v", err)
	}
	if _, err := machine.SetStage(ctx, event.StagePlan); err != nil {
		log.Fatalf("set stage plan: %v", err)
	}

	history := conversation.New()
	if err := history.Append(conversation.TextMessage(conversation.RoleUser, "Add a greeting to notes.txt")); err != nil {
		log.Fatalf("append user message: %v", err)
	}

	targetFile := filepath.Join(scratchDir, "notes.txt")
	client := &demoLLMClient{targetFile: targetFile}
	tools := &demoToolProvider{targetFile: targetFile}

	agentLoop := &loop.Loop{
		Client:       client,
		Tools:        tools,
		Bus:          bus,
		TaskID:       taskID,
		Mode:         event.ModePlan,
		Stage:        event.StagePlan,
		SystemPrompt: "You are a careful coding assistant.",
		Model:        "demo-model",
		Metrics:      metricsCollector,
		Budgets:      loop.Budgets{MaxIterations: 5},
	}

	runResult, err := agentLoop.Run(ctx, history)
	if err != nil {
		log.Fatalf("run loop: %v", err)
	}
	fmt.Printf("loop finished: stop_reason=%s iterations=%d tool_calls=%d\n",
		runResult.StopReason, runResult.Iterations, len(runResult.ToolCalls))

	fmt.Println()
	fmt.Println("-- scaffold: proposing a project layout --")
	scaffoldFlow := &scaffold.Coordinator{Bus: bus, TaskID: taskID}
	if err := scaffoldFlow.Start(ctx, event.ModePlan); err != nil {
		log.Fatalf("scaffold start: %v", err)
	}
	proposal := map[string]any{"pack": "minimal-cli"}
	if err := scaffoldFlow.ProposeOptions(ctx, event.ModePlan, proposal); err != nil {
		log.Fatalf("scaffold propose: %v", err)
	}
	if err := scaffoldFlow.RequestDecision(ctx, event.ModePlan, []string{"minimal-cli", "full-stack"}); err != nil {
		log.Fatalf("scaffold request decision: %v", err)
	}
	completion, err := scaffoldFlow.ResolveDecision(ctx, event.ModePlan, scaffold.ActionProceed, "")
	if err != nil {
		log.Fatalf("scaffold resolve: %v", err)
	}
	fmt.Printf("scaffold completed: %s\n", completion)

	fmt.Println()
	fmt.Println("-- MISSION: running one checkpointed autonomy iteration --")
	if _, err := machine.SetMode(ctx, event.ModeMission); err != nil {
		log.Fatalf("set mode MISSION: %v", err)
	}
	if _, err := machine.SetStage(ctx, event.StageEdit); err != nil {
		log.Fatalf("set stage edit: %v", err)
	}

	controller := &autonomy.Controller{
		Bus:         bus,
		Checkpoints: checkpoints,
		Metrics:     metricsCollector,
		TaskID:      taskID,
		Budgets:     autonomy.Budgets{MaxIterations: 3, MaxToolCalls: 10, MaxWallTime: time.Minute},
	}
	if err := controller.StartAutonomy(ctx, event.ModeMission, true, true); err != nil {
		log.Fatalf("start autonomy: %v", err)
	}

	result, err := controller.ExecuteIteration(ctx, event.StageEdit, "append a signature line", []string{targetFile},
		func(ctx context.Context) (autonomy.IterationResult, error) {
			existing, _ := os.ReadFile(targetFile)
			updated := append(existing, []byte("\n-- agentcore demo\n")...)
			if err := os.WriteFile(targetFile, updated, 0o644); err != nil {
				return autonomy.IterationResult{}, err
			}
			return autonomy.IterationResult{Success: true, ToolCalls: 1}, nil
		})
	if err != nil {
		log.Fatalf("execute iteration: %v", err)
	}
	fmt.Printf("iteration result: success=%v tool_calls=%d\n", result.Success, result.ToolCalls)

	if err := controller.Complete(ctx, event.StageEdit); err != nil {
		log.Fatalf("complete autonomy: %v", err)
	}

	fmt.Println()
	fmt.Println("-- verifying the change with a shell command --")
	if _, err := machine.SetStage(ctx, event.StageCommand); err != nil {
		log.Fatalf("set stage command: %v", err)
	}
	commandPhase := &command.Phase{
		Bus:      bus,
		Evidence: &command.FileEvidenceWriter{Dir: filepath.Join(scratchDir, "evidence")},
		Metrics:  metricsCollector,
	}
	cmdResult, err := commandPhase.RunCommandPhase(ctx, command.Request{
		TaskID:       taskID,
		Mode:         event.ModeMission,
		AutonomyMode: command.AutonomyAuto,
		Context:      command.ContextVerify,
		Commands:     []command.Command{{ID: "verify-1", Shell: fmt.Sprintf("cat %s", targetFile)}},
	})
	if err != nil {
		log.Fatalf("run command phase: %v", err)
	}
	fmt.Printf("command phase status: %s\n", cmdResult.Status)
	for _, r := range cmdResult.CommandResults {
		fmt.Printf("  command %s: exit_code=%d stdout_lines=%d\n", r.CommandID, r.ExitCode, r.StdoutLines)
	}

	fmt.Println()
	fmt.Println("-- restoring the checkpoint to prove byte-exact rollback --")
	if err := checkpoints.RestoreCheckpoint(ctx, taskID, event.ModeMission, event.StageEdit, checkpoints.ActiveCheckpointID()); err != nil {
		log.Fatalf("restore checkpoint: %v", err)
	}
	restored, err := os.ReadFile(targetFile)
	if err != nil {
		log.Fatalf("read restored file: %v", err)
	}
	fmt.Printf("restored file content: %q\n", string(restored))

	fmt.Println()
	fmt.Println("-- event log summary --")
	events, err := store.List(ctx, taskID)
	if err != nil {
		log.Fatalf("list events: %v", err)
	}
	counts := map[event.Type]int{}
	for _, e := range events {
		counts[e.Type]++
	}
	for t, n := range counts {
		fmt.Printf("  %s: %d\n", t, n)
	}

	fmt.Println()
	fmt.Println("=== demo complete ===")
}

// demoLLMClient scripts one tool_use turn followed by an end_turn reply,
// so the loop exercises both branches without a network call.
type demoLLMClient struct {
	targetFile string
	calls      int
}

func (c *demoLLMClient) CreateMessage(ctx context.Context, req llm.MessageRequest) (llm.MessageResponse, error) {
	c.calls++
	if c.calls == 1 {
		return llm.MessageResponse{
			ToolCalls: []llm.ToolCall{{
				ID:    "call-1",
				Name:  "write_file",
				Input: map[string]any{"content": "hello from the demo\n"},
			}},
			StopReason: llm.StopToolUse,
			Usage:      llm.Usage{InputTokens: 120, OutputTokens: 18},
		}, nil
	}
	return llm.MessageResponse{
		Text:       fmt.Sprintf("I've written the greeting to %s.", c.targetFile),
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 140, OutputTokens: 12},
	}, nil
}

func (c *demoLLMClient) StreamMessage(ctx context.Context, req llm.MessageRequest) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch, nil
}

// demoToolProvider implements the one tool the scripted LLM calls.
type demoToolProvider struct {
	targetFile string
}

func (p *demoToolProvider) ExecuteTool(ctx context.Context, name string, input map[string]any) (llm.ToolResult, error) {
	if name != "write_file" {
		return llm.ToolResult{Success: false, Error: "unknown tool: " + name}, nil
	}
	content, _ := input["content"].(string)
	if err := os.WriteFile(p.targetFile, []byte(content), 0o644); err != nil {
		return llm.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return llm.ToolResult{Success: true, Output: "wrote " + p.targetFile}, nil
}
