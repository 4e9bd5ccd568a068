package main

import (
	"log"

	"github.com/joho/godotenv"

	"nextmsgbot/bot"
	corecmd "nextmsgbot/core/cmd"
)

func main() {
	// Local development convenience; production supplies real env vars.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return bot.Bootstrap(cfg.(*bot.Config))
		},
	})
	if err != nil {
		log.Fatalf("nextmsgbot: %v", err)
	}
}
