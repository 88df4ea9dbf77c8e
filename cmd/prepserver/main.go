package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prepdeck/internal/bootstrap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using the process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := bootstrap.BuildServer(ctx)
	if err != nil {
		log.Fatalf("server setup failed: %v", err)
	}

	go func() {
		<-ctx.Done()
		if err := runtime.App.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	addr := ":" + runtime.Config.Server.Port
	log.Printf("Server running on http://localhost%s", addr)
	if err := runtime.App.Listen(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	if err := runtime.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}
