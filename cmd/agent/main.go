package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vektra-dev/browseragent/internal/agentcore"
	"github.com/vektra-dev/browseragent/internal/browserhost"
	"github.com/vektra-dev/browseragent/internal/llm"
	"github.com/vektra-dev/browseragent/internal/runner"
	"github.com/vektra-dev/browseragent/internal/tools"
)

type cliOptions struct {
	task              string
	maxSteps          int
	maxActionsPerStep int
	maxFailures       int
	useVision         bool
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()
	if opts.task == "" {
		task, cancelled, err := promptTask()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt task failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.task = task
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient, err := llm.NewClientWithLogger(log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}

	launcher, err := browserhost.NewLauncher()
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	host, err := launcher.NewHost()
	if err != nil {
		log.Fatal().Err(err).Msg("browser host")
	}
	defer host.Close(ctx)

	executor := tools.NewPlaywrightExecutor(host)

	cfg := agentcore.DefaultConfig(opts.task)
	cfg.MaxSteps = opts.maxSteps
	cfg.MaxActionsPerStep = opts.maxActionsPerStep
	cfg.MaxFailures = opts.maxFailures
	cfg.UseVision = opts.useVision

	reg := runner.NewRegistry(log.With().Str("comp", "runner").Logger())

	done := make(chan struct{})
	taskID, err := reg.StartAgentTask(cfg, host, executor, llmClient, func(evt runner.Event) {
		logTaskEvent(evt)
		if evt.Type == runner.EventDone || evt.Type == runner.EventError || evt.Type == runner.EventStopped {
			close(done)
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("start agent task")
	}

	fmt.Printf("Started task %s\n", taskID)

	select {
	case <-done:
	case <-ctx.Done():
		reg.StopAgentTask(taskID)
		<-done
	}
}

func logTaskEvent(evt runner.Event) {
	ev := log.Info().Str("type", string(evt.Type)).Int("step", evt.StepNumber)
	for k, v := range evt.Data {
		ev = ev.Interface(k, v)
	}
	ev.Msg("agent event")
}

func parseFlags() cliOptions {
	task := flag.String("task", "", "Task description")
	maxSteps := flag.Int("max-steps", 50, "Max agent steps")
	maxActions := flag.Int("max-actions-per-step", 5, "Max actions per step")
	maxFailures := flag.Int("max-failures", 5, "Consecutive failures before stopping")
	useVision := flag.Bool("use-vision", true, "Attach screenshots to each step")
	flag.Parse()
	return cliOptions{
		task:              strings.TrimSpace(*task),
		maxSteps:          *maxSteps,
		maxActionsPerStep: *maxActions,
		maxFailures:       *maxFailures,
		useVision:         *useVision,
	}
}

func promptTask() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter task (leave blank to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxTaskLength = 2000
	if len(line) > maxTaskLength {
		fmt.Printf("Task too long (max %d characters), truncated\n", maxTaskLength)
		line = line[:maxTaskLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}

	return sanitized.String(), false, nil
}
