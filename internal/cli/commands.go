// Package cli implements the interactive operator console.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/db"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/server"
)

const commandTimeout = 5 * time.Second

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	manager  *server.Manager
	store    *db.MatchStore

	in  io.Reader
	out io.Writer
}

// NewCLI creates a CLI on stdin and stdout. store may be nil.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, manager *server.Manager, store *db.MatchStore) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		manager:  manager,
		store:    store,
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// Start reads commands until ctx is done, input ends or quit is entered.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nSkeld console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "skeld> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "rooms", "status", "s":
		c.printRooms()
	case "room":
		return c.cmdRoom(args)
	case "players":
		return c.cmdPlayers(args)
	case "create":
		return c.cmdCreate(args)
	case "start":
		return c.withCode(args, func(code string) error {
			if err := c.manager.StartGame(ctx, code); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Game starting in %s\n", code)
			return nil
		})
	case "end":
		return c.cmdEnd(ctx, args)
	case "close":
		return c.withCode(args, func(code string) error {
			if err := c.manager.DestroyRoom(code); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Room %s closed\n", code)
			return nil
		})
	case "public", "private":
		return c.withCode(args, func(code string) error {
			public, err := c.manager.SetPrivacy(ctx, code, cmd == "public")
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Room %s public: %v\n", code, public)
			return nil
		})
	case "kick", "ban":
		return c.cmdKick(ctx, cmd == "ban", args)
	case "presets":
		fmt.Fprintf(c.out, "Presets: %s\n", strings.Join(c.manager.Presets(), ", "))
	case "matches":
		return c.cmdMatches(args)
	case "lag":
		c.printLag()
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down Skeld...")
		if c.eventBus != nil {
			c.eventBus.Emit(context.Background(), events.Event{Type: events.EventShutdown, Source: "cli"})
		}
		return errQuit
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	tw := c.table([]string{"Command", "Description"})
	for _, row := range [][]string{
		{"rooms", "List live rooms"},
		{"room <code>", "Show one room"},
		{"players <code>", "List the players of a room"},
		{"create [code] [preset]", "Create a room"},
		{"start <code>", "Start the game of a lobby"},
		{"end <code> [reason]", "End the running game"},
		{"close <code>", "Destroy a room"},
		{"public|private <code>", "List or unlist a room"},
		{"kick|ban <code> <client>", "Remove a player"},
		{"presets", "List option presets"},
		{"matches [n]", "Show recent matches"},
		{"lag", "Show rooms that fall behind their tick rate"},
		{"setconfig <key> <value>", "Update a room setting"},
		{"quit", "Shut down the server"},
	} {
		tw.Append(row)
	}
	tw.Render()
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printRooms() {
	rooms := c.manager.List()
	if len(rooms) == 0 {
		fmt.Fprintln(c.out, "No rooms.")
		return
	}

	tw := c.table([]string{"Code", "Phase", "Public", "Map", "Players", "Games", "Uptime"})
	for _, r := range rooms {
		st := r.State
		tw.Append([]string{
			r.Code,
			st.Phase.String(),
			strconv.FormatBool(st.Public),
			st.Map,
			fmt.Sprintf("%d/%d", st.PlayerCount, st.MaxPlayers),
			strconv.Itoa(st.GamesPlayed),
			r.Uptime,
		})
	}
	tw.Render()
}

func (c *CLI) withCode(args []string, fn func(code string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("room code required")
	}
	return fn(strings.ToUpper(args[0]))
}

func (c *CLI) cmdRoom(args []string) error {
	return c.withCode(args, func(code string) error {
		inst, ok := c.manager.Get(code)
		if !ok {
			return server.ErrRoomNotFound
		}
		info := inst.GetInfo()
		st := info.State
		fmt.Fprintf(c.out, "\n  Code:       %s\n", info.Code)
		fmt.Fprintf(c.out, "  Session:    %s\n", info.SessionID)
		fmt.Fprintf(c.out, "  Phase:      %s\n", st.Phase)
		fmt.Fprintf(c.out, "  Public:     %v\n", st.Public)
		fmt.Fprintf(c.out, "  Map:        %s\n", st.Map)
		fmt.Fprintf(c.out, "  Players:    %d/%d\n", st.PlayerCount, st.MaxPlayers)
		fmt.Fprintf(c.out, "  Impostors:  %d\n", st.Impostors)
		fmt.Fprintf(c.out, "  Match ID:   %s\n", st.MatchID)
		fmt.Fprintf(c.out, "  Games:      %d\n", st.GamesPlayed)
		fmt.Fprintf(c.out, "  Tick Rate:  %d Hz\n", info.TickRate)
		fmt.Fprintf(c.out, "  Uptime:     %s\n", info.Uptime)
		if info.Recording != "" {
			fmt.Fprintf(c.out, "  Recording:  %s\n", info.Recording)
		}
		fmt.Fprintln(c.out)
		return nil
	})
}

func (c *CLI) cmdPlayers(args []string) error {
	return c.withCode(args, func(code string) error {
		players, err := c.manager.Players(code)
		if err != nil {
			return err
		}
		tw := c.table([]string{"Client", "Player", "Name", "Color", "Host", "Impostor", "Dead"})
		for _, p := range players {
			pid := "-"
			if p.PlayerID >= 0 {
				pid = strconv.Itoa(p.PlayerID)
			}
			tw.Append([]string{
				strconv.Itoa(int(p.ClientID)),
				pid,
				p.Name,
				p.Color,
				strconv.FormatBool(p.Host),
				strconv.FormatBool(p.Impostor),
				strconv.FormatBool(p.Dead),
			})
		}
		tw.Render()
		return nil
	})
}

func (c *CLI) cmdCreate(args []string) error {
	opts := server.CreateOptions{}
	if len(args) > 0 {
		opts.Code = args[0]
	}
	if len(args) > 1 {
		opts.Preset = args[1]
	}
	inst, err := c.manager.CreateRoom(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Room %s created\n", inst.Code())
	return nil
}

func (c *CLI) cmdEnd(ctx context.Context, args []string) error {
	reason := protocol.GameOverNone
	if len(args) > 1 {
		r, ok := protocol.ParseGameOverReason(args[1])
		if !ok {
			return fmt.Errorf("unknown reason: %s", args[1])
		}
		reason = r
	}
	return c.withCode(args, func(code string) error {
		if err := c.manager.EndGame(ctx, code, reason); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Game in %s ended (%s)\n", code, reason)
		return nil
	})
}

func (c *CLI) cmdKick(ctx context.Context, ban bool, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: kick <code> <client id>")
	}
	id, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid client id: %s", args[1])
	}
	code := strings.ToUpper(args[0])
	if err := c.manager.KickPlayer(ctx, code, int32(id), ban); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Client %d removed from %s\n", id, code)
	return nil
}

func (c *CLI) cmdMatches(args []string) error {
	if c.store == nil {
		return fmt.Errorf("match storage is disabled")
	}
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	matches, err := c.store.ListMatches(limit, 0)
	if err != nil {
		return err
	}
	tw := c.table([]string{"Match", "Code", "Map", "Started", "Players", "Winners", "Reason"})
	for _, m := range matches {
		tw.Append([]string{
			m.MatchID,
			m.Code,
			m.Map,
			m.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(m.PlayerCount),
			m.Winners,
			m.Reason,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printLag() {
	data := c.manager.LagMonitor().GetAllRoomData()
	if len(data) == 0 {
		fmt.Fprintln(c.out, "No long ticks recorded.")
		return
	}
	tw := c.table([]string{"Code", "Total", "Last Hour", "Max (ms)", "Avg (ms)"})
	for code, d := range data {
		tw.Append([]string{
			code,
			strconv.Itoa(d.TotalEvents),
			strconv.Itoa(d.EventsThisHour),
			strconv.FormatInt(d.MaxDelta, 10),
			fmt.Sprintf("%.1f", d.AvgDelta),
		})
	}
	tw.Render()
}

// cmdSetConfig updates a room setting. Values are parsed as JSON scalars
// when possible, so "setconfig max_rooms 8" stores a number.
func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}
	key := args[0]
	raw := strings.Join(args[1:], " ")

	var value interface{} = raw
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		value = n
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}

	previous := c.cfg.GetRoom()
	if err := c.cfg.UpdateRoomField(key, value); err != nil {
		return err
	}
	if result := config.Validate(c.cfg); !result.IsValid() {
		c.cfg.SetRoom(previous)
		return result.Errors[0]
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}
	if c.eventBus != nil {
		c.eventBus.Emit(context.Background(), events.Event{
			Type:    events.EventConfigChanged,
			Source:  "cli",
			Payload: events.ConfigChangedPayload{Section: "room", Key: key, Value: value},
		})
	}

	fmt.Fprintf(c.out, "Config updated: %s = %v\n", key, value)
	return nil
}
