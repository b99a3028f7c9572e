package main

import (
	"github.com/signalhouse/magpie/internal/server"
	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/logger/console"

	_ "github.com/lib/pq"
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
