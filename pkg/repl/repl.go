package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

type REPL struct {
	Commands map[string]func(string, *REPLConfig) error
	Help     map[string]string
}

type REPLConfig struct {
	Writer io.Writer
}

func NewRepl() *REPL {
	r := &REPL{make(map[string]func(string, *REPLConfig) error), make(map[string]string)}
	return r
}

// Add a command, along with its help string, to the set of commands
func (r *REPL) AddCommand(trigger string, handler func(string, *REPLConfig) error, help string) {
	if trigger == "" || trigger[0] == '.' {
		return
	}
	r.Help[trigger] = help
	r.Commands[trigger] = handler
}

// Return all REPL usage information as a string
func (r *REPL) HelpString() string {
	var sb strings.Builder
	sb.WriteString("Commands\n")
	for k, v := range r.Help {
		sb.WriteString(fmt.Sprintf("\t%s: %s\n", k, v))
	}
	return sb.String()
}

// Run reads lines until EOF and dispatches them to registered handlers.
// Handler errors are printed, not fatal.
func (r *REPL) Run(prompt string) error {
	rl, err := readline.New(prompt)
	if err != nil {
		return err
	}
	defer rl.Close()
	replConfig := &REPLConfig{Writer: rl.Stdout()}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		command := strings.Split(input, " ")[0]
		handler, ok := r.Commands[command]

		if !ok {
			io.WriteString(replConfig.Writer, fmt.Sprintf("Invalid command: %s\n", command))
			io.WriteString(replConfig.Writer, r.HelpString())
			continue
		}
		if err := handler(input, replConfig); err != nil {
			io.WriteString(replConfig.Writer, fmt.Sprintf("Error: %v\n", err))
		}
	}
}
