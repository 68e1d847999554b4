package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"bone_chat/internal/config"
	"bone_chat/internal/service/app"
	"bone_chat/internal/utils/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chat <email>")
		os.Exit(1)
	}
	email := os.Args[1]

	cfg := config.Load()

	var password string
	fmt.Print("Password: ")
	if _, err := fmt.Scan(&password); err != nil {
		fmt.Println("error:", err)
		return
	}

	token, err := app.Login(cfg.RelayHost, email, password)
	if err != nil {
		// First run: register the account, then log in.
		if err := app.Signup(cfg.RelayHost, email, email, password); err != nil {
			log.Fatal("signup failed", zap.Error(err))
		}
		token, err = app.Login(cfg.RelayHost, email, password)
		if err != nil {
			log.Fatal("login failed", zap.Error(err))
		}
	}

	ui := app.NewApp(cfg.RelayHost, token)
	if err := ui.Run(); err != nil {
		log.Fatal("cannot run app", zap.Error(err))
	}
}
