package main

import (
	"log"

	"github.com/hzblue/lottery-backend/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
