package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const setupAttempts = 3

// RunSetupWizard asks for the essential settings on the terminal, then
// validates and saves them.
func RunSetupWizard(cfg *Config) error {
	return runSetupWizard(cfg, os.Stdin, os.Stdout)
}

func runSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	p := &prompter{in: bufio.NewReader(in), out: out}

	fmt.Fprintln(out, "Skeld first run setup")
	fmt.Fprintln(out, "Press enter to keep the value in brackets.")

	for attempt := 1; attempt <= setupAttempts; attempt++ {
		room := cfg.GetRoom()
		app := cfg.GetApplicationData()

		p.section("Rooms")
		room.MaxRooms = p.int("Maximum concurrent rooms", room.MaxRooms)
		room.DefaultMap = p.string("Default map (TheSkeld, MiraHQ, Polus, Airship)", room.DefaultMap)
		room.Authoritative = p.bool("Run rooms server-authoritative", room.Authoritative)
		room.PresetsFile = p.string("Game options presets file", room.PresetsFile)
		room.DefaultPreset = p.string("Default preset (blank for built-in options)", room.DefaultPreset)

		p.section("HTTP")
		app.API.Port = p.int("Listen port", app.API.Port)
		app.Security.APIToken = p.string("API token for control routes (blank for none)", "")

		p.section("Storage")
		app.Storage.Enabled = p.bool("Record match history", app.Storage.Enabled)
		if app.Storage.Enabled {
			app.Storage.Path = p.string("Database path", app.Storage.Path)
		}
		app.Replay.Enabled = p.bool("Record replays", app.Replay.Enabled)
		if app.Replay.Enabled {
			app.Replay.Directory = p.string("Replay directory", app.Replay.Directory)
		}

		p.section("MQTT")
		app.MQTT.Enabled = p.bool("Publish room events over MQTT", app.MQTT.Enabled)
		if app.MQTT.Enabled {
			app.MQTT.BrokerURL = p.string("Broker host", app.MQTT.BrokerURL)
			app.MQTT.Port = p.int("Broker port", app.MQTT.Port)
		}

		cfg.SetRoom(room)
		cfg.SetApplicationData(app)

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Fprintln(out, "Configuration saved.")
			return nil
		}

		fmt.Fprintln(out, "Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if p.eof {
			break
		}
	}
	return errors.New("configuration validation failed")
}

// prompter reads answers line by line. After EOF every prompt returns its
// default.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	eof bool
}

func (p *prompter) section(name string) {
	fmt.Fprintf(p.out, "\n-- %s --\n", name)
}

func (p *prompter) ask(prompt, shown string) string {
	if shown != "" {
		fmt.Fprintf(p.out, "  %s [%s]: ", prompt, shown)
	} else {
		fmt.Fprintf(p.out, "  %s: ", prompt)
	}
	if p.eof {
		return ""
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		p.eof = true
	}
	return strings.TrimSpace(line)
}

func (p *prompter) string(prompt, def string) string {
	if v := p.ask(prompt, def); v != "" {
		return v
	}
	return def
}

func (p *prompter) int(prompt string, def int) int {
	v := p.ask(prompt, strconv.Itoa(def))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(p.out, "    not a number, keeping %d\n", def)
		return def
	}
	return n
}

func (p *prompter) bool(prompt string, def bool) bool {
	shown := "no"
	if def {
		shown = "yes"
	}
	switch strings.ToLower(p.ask(prompt, shown)) {
	case "":
		return def
	case "y", "yes", "true", "1":
		return true
	default:
		return false
	}
}
