package main

import (
	"github.com/vmuthusamy/sentry-log-analysis-sub000/cmd/sentry/commands"
)

func main() {
	commands.Execute()
}
