package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"kiosk/config"
	"kiosk/doctor"
	"kiosk/log"
	"kiosk/login"
)

var version = "dev"

const usage = `usage: kiosk [command] [flags]

commands:
  watch     start the pipeline when a visitor arrives (default)
  analyze   live speech activity from the microphone
  serve     HTTP audio classification endpoint
  doctor    check the environment
  login     start watch at login: enable [watch flags] | disable | status
  version   print the version

Run "kiosk <command> -h" for the command's flags.
`

func main() {
	cmd, args := "watch", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	os.Exit(run(cmd, args))
}

func run(cmd string, args []string) int {
	switch cmd {
	case "watch":
		return runWatch(args)
	case "analyze":
		return runAnalyze(args)
	case "serve":
		return runServe(args)
	case "doctor":
		return runDoctor(args)
	case "login":
		return runLogin(args)
	case "version":
		fmt.Printf("kiosk %s\n", version)
		return 0
	case "help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

// common holds the flags every subcommand takes.
type common struct {
	configPath string
	logPath    string
	logLevel   string
}

func commonFlags(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "config file (default: "+config.DefaultPath+" if present)")
	fs.StringVar(&c.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&c.logLevel, "loglevel", "", "log level, overrides log_level from the config")
	return c
}

// setup loads the config and starts logging. Console receives a copy of the
// log; nil keeps it in the file only.
func (c *common) setup(console io.Writer) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logPath != "" {
		cfg.LogPath = c.logPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("resolve log directory: %w", err)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(log.Options{Level: cfg.LogLevel, Console: console}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fail(err error) int {
	log.Errorf("%v", err)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	c := commonFlags(fs)
	mic := fs.Bool("mic", true, "record a short microphone test")
	fs.Parse(args)

	cfg, err := c.setup(nil)
	if err != nil {
		return fail(err)
	}
	defer log.Close()
	return doctor.Run(cfg, *mic)
}

func runLogin(args []string) int {
	if len(args) == 0 {
		args = []string{"status"}
	}
	switch args[0] {
	case "enable":
		a, err := login.CurrentAgent(".", args[1:])
		if err == nil {
			err = login.Enable(a)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("kiosk watch will start at login from %s\n", a.Dir)
	case "disable":
		if err := login.Disable(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println("Login item removed.")
	case "status":
		fmt.Printf("start at login: %v\n", login.Enabled())
	default:
		fmt.Fprintf(os.Stderr, "unknown login action %q\n", args[0])
		return 2
	}
	return 0
}
