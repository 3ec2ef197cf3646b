package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"browsercore/internal/di"
	"browsercore/internal/infrastructure/env"
	"browsercore/internal/usecase/agentloop"
)

func main() {
	envService := env.NewEnvService()

	fmt.Println("\nEnter a task for the agent:")
	reader := bufio.NewReader(os.Stdin)
	task, err := reader.ReadString('\n')
	if err != nil {
		log.Fatal("failed to read input: ", err)
	}
	task = strings.TrimSpace(task)
	if task == "" {
		log.Fatal("task cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	container, err := di.New(ctx, di.ConfigFromEnv(envService, task))
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer container.Close()

	container.Logger.Info("task started", "task", task)
	fmt.Println("\nAgent starting...")

	result, err := container.Agent.Run(ctx, task, func(text string) {
		fmt.Printf("… %s\n", text)
	})
	if err != nil && !agentloop.IsGracefulTermination(err) {
		container.Logger.Error("task failed", "error", err)
		fmt.Printf("\nRun error: %v\n", err)
		os.Exit(1)
	}

	container.Logger.Info("task completed", "steps", result.Steps)
	fmt.Println("\nFINAL ANSWER:")
	fmt.Println(result.FinalAnswer)
}
