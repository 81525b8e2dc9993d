// Package login starts kiosk watch when the user logs in. Only macOS launch
// agents are supported; elsewhere Enable returns ErrUnsupported.
package login

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
)

const Label = "com.kiosk.watch"

var ErrUnsupported = errors.New("login items are not supported on this platform")

// passEnv are copied into the agent so it finds the same models and logs.
var passEnv = []string{"MODEL_PATH", "SCALER_PATH", "KIOSK_LOG_PATH"}

// Agent is what the launch agent runs.
type Agent struct {
	Executable string
	Args       []string
	Dir        string
	Env        map[string]string
}

// CurrentAgent runs this executable's watch command from dir.
func CurrentAgent(dir string, args []string) (Agent, error) {
	exe, err := os.Executable()
	if err != nil {
		return Agent{}, fmt.Errorf("resolve executable: %w", err)
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return Agent{}, err
	}
	env := map[string]string{}
	for _, key := range passEnv {
		if v := os.Getenv(key); v != "" {
			env[key] = v
		}
	}
	return Agent{Executable: exe, Args: append([]string{"watch"}, args...), Dir: dir, Env: env}, nil
}

func (a Agent) Plist() string {
	var args strings.Builder
	for _, s := range append([]string{a.Executable}, a.Args...) {
		fmt.Fprintf(&args, "\t\t<string>%s</string>\n", html.EscapeString(s))
	}
	var env strings.Builder
	for _, key := range passEnv {
		if v, ok := a.Env[key]; ok {
			fmt.Fprintf(&env, "\t\t<key>%s</key>\n\t\t<string>%s</string>\n", key, html.EscapeString(v))
		}
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
%s	</array>
	<key>WorkingDirectory</key>
	<string>%s</string>
	<key>RunAtLoad</key>
	<true/>
	<key>LimitLoadToSessionType</key>
	<string>Aqua</string>
	<key>EnvironmentVariables</key>
	<dict>
%s	</dict>
</dict>
</plist>
`, Label, args.String(), html.EscapeString(a.Dir), env.String())
}
