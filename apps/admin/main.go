package main

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/novelty"
	"github.com/victorpuello/kampus-sub004/core/user"
	"github.com/victorpuello/kampus-sub004/services/kampusapi"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	client := kampusapi.NewClient(conf, nil)

	// start CLI
	cli := commandLine{
		api:      client,
		cases:    novelty.NewService(client, validate, nil),
		validate: validate,
		out:      os.Stdout,
	}
	cli.loadSession()
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kampus_monitor_token"
	}
	return filepath.Join(home, ".kampus_monitor_token")
}

// loadSession restores the session saved by a previous `login`.
func (cli *commandLine) loadSession() {
	data, err := ioutil.ReadFile(tokenPathFunc())
	if err != nil {
		return
	}
	sess, err := user.NewSession(string(data))
	if err != nil || sess.Expired() {
		return
	}
	cli.api.SetSession(sess)
}
