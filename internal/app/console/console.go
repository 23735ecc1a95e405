// Package console reads viewer commands from a line-oriented stream and
// applies them to a session.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/app/orch"
	"github.com/dkeye/remoterg/internal/control"
)

var (
	ErrQuit  = errors.New("quit")
	ErrEmpty = errors.New("empty command")
)

// Session is the part of the orchestrator the console drives.
type Session interface {
	Connect() uint64
	Disconnect()
	State() orch.State
	SendKey(key string, down bool) error
	RequestScreenshot() error
	Analyze(maxEdge int) (string, error)
	Click(x, y float64, button control.MouseButton) error
	GetLlmConfig() error
	SetLlmConfig(cfg control.LlmConfig) error
	InjectFault(f orch.Fault) error
}

// Command is one parsed console line.
type Command struct {
	Name string
	run  func(Session) (string, error)
}

func (c Command) Exec(s Session) (string, error) {
	return c.run(s)
}

type usageError struct {
	usage string
}

func (e *usageError) Error() string { return "usage: " + e.usage }

func usage(u string) error { return &usageError{usage: u} }

func ok(err error) (string, error) {
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmpty
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "key":
		if len(args) != 2 || (args[1] != "down" && args[1] != "up") {
			return Command{}, usage("key <key> <down|up>")
		}
		key, down := args[0], args[1] == "down"
		return Command{Name: name, run: func(s Session) (string, error) {
			return ok(s.SendKey(key, down))
		}}, nil

	case "click":
		if len(args) < 2 || len(args) > 3 {
			return Command{}, usage("click <x> <y> [left|right|middle]")
		}
		x, errX := strconv.ParseFloat(args[0], 64)
		y, errY := strconv.ParseFloat(args[1], 64)
		if errX != nil || errY != nil || x < 0 || x > 1 || y < 0 || y > 1 {
			return Command{}, usage("click <x> <y> [left|right|middle], coordinates in 0..1")
		}
		var raw string
		if len(args) == 3 {
			raw = args[2]
		}
		button, err := control.ParseMouseButton(raw)
		if err != nil {
			return Command{}, err
		}
		return Command{Name: name, run: func(s Session) (string, error) {
			return ok(s.Click(x, y, button))
		}}, nil

	case "screenshot":
		return Command{Name: name, run: func(s Session) (string, error) {
			return ok(s.RequestScreenshot())
		}}, nil

	case "analyze":
		maxEdge := 0
		if len(args) > 1 {
			return Command{}, usage("analyze [max_edge]")
		}
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return Command{}, usage("analyze [max_edge]")
			}
			maxEdge = n
		}
		return Command{Name: name, run: func(s Session) (string, error) {
			id, err := s.Analyze(maxEdge)
			if err != nil {
				return "", err
			}
			return "analysis " + id, nil
		}}, nil

	case "config":
		return parseConfig(args)

	case "fault":
		if len(args) != 1 {
			return Command{}, usage("fault <signaling|transport>")
		}
		f, valid := orch.ParseFault(args[0])
		if !valid {
			return Command{}, usage("fault <signaling|transport>")
		}
		return Command{Name: name, run: func(s Session) (string, error) {
			return ok(s.InjectFault(f))
		}}, nil

	case "connect":
		return Command{Name: name, run: func(s Session) (string, error) {
			return fmt.Sprintf("generation %d", s.Connect()), nil
		}}, nil

	case "disconnect":
		return Command{Name: name, run: func(s Session) (string, error) {
			s.Disconnect()
			return "ok", nil
		}}, nil

	case "status":
		return Command{Name: name, run: func(s Session) (string, error) {
			return FormatState(s.State()), nil
		}}, nil

	case "quit", "exit":
		return Command{Name: "quit", run: func(Session) (string, error) {
			return "", ErrQuit
		}}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q", name)
}

func parseConfig(args []string) (Command, error) {
	if len(args) == 1 && args[0] == "get" {
		return Command{Name: "config", run: func(s Session) (string, error) {
			return ok(s.GetLlmConfig())
		}}, nil
	}
	if len(args) == 4 && args[0] == "set" {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || port == 0 {
			return Command{}, usage("config set <port> <model_path> <mmproj_path>")
		}
		cfg := control.LlmConfig{Port: uint16(port), ModelPath: args[2], MmprojPath: args[3]}
		return Command{Name: "config", run: func(s Session) (string, error) {
			return ok(s.SetLlmConfig(cfg))
		}}, nil
	}
	return Command{}, usage("config get | config set <port> <model_path> <mmproj_path>")
}

func FormatState(st orch.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "gen=%d status=%s connection=%s ice=%s control=%t tracks=%d",
		st.Gen, st.Status, st.Connection, st.ICE, st.ControlOpen, st.Tracks)
	if st.ControlRTT > 0 {
		fmt.Fprintf(&b, " rtt=%s", st.ControlRTT)
	}
	if st.Err != nil {
		fmt.Fprintf(&b, " err=%q", st.Err.Error())
	}
	return b.String()
}

// Run executes commands line by line until the input ends, ctx is done or a
// quit command is read. Bad lines are reported and skipped.
func Run(ctx context.Context, in io.Reader, out io.Writer, s Session, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			cmd, err := Parse(line)
			if errors.Is(err, ErrEmpty) {
				continue
			}
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			res, err := cmd.Exec(s)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				logger.Warn().Err(err).Str("command", cmd.Name).Msg("command failed")
				fmt.Fprintln(out, "error:", err)
				continue
			}
			fmt.Fprintln(out, res)
		}
	}
}
