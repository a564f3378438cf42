//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edirooss/procmon/internal/config"
	"github.com/edirooss/procmon/internal/control"
	"github.com/edirooss/procmon/internal/daemon"
	"github.com/edirooss/procmon/internal/logging"
	"github.com/edirooss/procmon/internal/supervisor"
)

const version = "1.0.2"

// Exit codes. exitAlloc is kept for CLI compatibility; the Go runtime
// aborts on allocation failure before we could use it.
const (
	exitOK       = 0
	exitUsage    = 1
	exitSyscall  = 2
	exitAlloc    = 5
	exitBug      = 88
	exitExecFail = 99
)

func main() {
	os.Exit(run())
}

func run() int {
	progName := filepath.Base(os.Args[0])

	cfg, err := config.Parse(progName, os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		return exitUsage
	}
	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", progName, version)
		return exitOK
	}

	// Sender mode: deliver one command byte to a running instance.
	if cfg.Command != "" {
		cmd, err := control.CommandFromName(cfg.Command)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
			return exitUsage
		}
		if err := control.Send(cfg.CommandPipe, cmd); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
			if errors.Is(err, control.ErrNotFIFO) {
				return exitUsage
			}
			return exitSyscall
		}
		return exitOK
	}

	// Descriptors inherited from an init system go before anything of
	// ours is opened.
	if cfg.ReleaseAllFD {
		daemon.ReleaseFDs()
	}

	if cfg.Daemon && !daemon.Detached() {
		if err := daemon.Detach(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
			return exitSyscall
		}
		return exitOK
	}
	isDaemon := cfg.Daemon && daemon.Detached()

	logs, err := logging.New(logging.Options{
		Name:      cfg.LogName,
		ChildName: cfg.ChildLogName,
		Daemon:    isDaemon,
		LogFile:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		return exitSyscall
	}
	defer logs.Close()
	log := logs.Parent

	log.Debug("effective configuration", zap.String("config", spew.Sdump(cfg)))
	if cfg.MaxWaitRaised {
		log.Warn("max wait time below min wait time, raised",
			zap.Duration("max_wait", cfg.MaxWait))
	}
	if cfg.Email != "" {
		log.Warn("--email is accepted but not implemented")
	}

	var pidFile *daemon.PIDFile
	if cfg.PidFile != "" {
		pidFile, err = daemon.WritePIDFile(cfg.PidFile)
		if err != nil {
			log.Error("cannot write pid file", zap.Error(err))
			return exitUsage
		}
	}

	var commands <-chan control.Command
	var pipe *control.Pipe
	if cfg.CommandPipe != "" {
		pipe, err = control.OpenPipe(cfg.CommandPipe, log)
		if err != nil {
			log.Error("cannot set up command pipe", zap.Error(err))
			if pidFile != nil {
				pidFile.Remove(log)
			}
			if errors.Is(err, control.ErrNotFIFO) {
				return exitUsage
			}
			return exitSyscall
		}
		commands = pipe.Commands()
	}

	code := supervisor.New(cfg, logs, commands, isDaemon).Run()

	if pipe != nil {
		pipe.Close()
	}
	if pidFile != nil {
		pidFile.Remove(log)
	}
	return code
}
