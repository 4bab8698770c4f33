package main

import (
	"awardgraph/internal/server"
	"awardgraph/internal/util"
	"awardgraph/pkg/logger"
	"awardgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
