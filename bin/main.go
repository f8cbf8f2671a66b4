package main

import (
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("gofsntfs",
		"A tool for inspecting ntfs volumes.")

	debug_flag = app.Flag("debug", "Print debug information").Bool()

	record_directory = app.Flag(
		"record", "Path to read/write recorded data").
		Default("").String()

	command_handlers []CommandHandler
)

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *debug_flag {
		parser.SetDebug()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
