package main

import (
	"fmt"
	"os"

	"github.com/kutrace/rawtoevent/pkg/app"
	"github.com/kutrace/rawtoevent/pkg/config"
	"github.com/kutrace/rawtoevent/pkg/log"
)

var (
	version     string
	commitId    string
	releaseTime string
	goVersion   string
	author      string
)

func main() {
	// init config
	err := config.ConfigInit()
	if err != nil {
		fmt.Printf("%v", err)
	}
	// init log
	log.LogInit()

	cmd := app.NewCmd()
	app.SubCmdInit(cmd)
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rawtoevent: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	app.Version = version
	app.CommitId = commitId
	app.ReleaseTime = releaseTime
	app.GoVersion = goVersion
	app.Author = author
}
