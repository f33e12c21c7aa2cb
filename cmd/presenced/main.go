package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/cosounds/presenced/internal/app"
)

func main() {
	// .envファイルがあれば読み込む（本番環境では環境変数を直接使用）
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env file")
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
