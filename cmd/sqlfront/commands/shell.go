package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

const (
	shellPrompt     = "sqlfront> "
	shellContPrompt = "     ...> "
)

const shellHelp = `Statements end with ";" and may span several lines.

  .tables           list tables and views
  .schema [NAME]    list objects, or print the CREATE statement of NAME
  .rows NAME [N]    show up to N rows of a table or view
  .help             show this help
  .quit             exit (also .exit or Ctrl-D)
`

// newShellCmd creates `sqlfront shell`.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <db>",
		Short: "Interactive SQL shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key, err := a.resolveKey(args[0])
			if err != nil {
				return err
			}
			res, err := a.workbench.Open(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			a.remember(res.Path, key, false)

			fmt.Fprintf(a.out, "%s: %d table(s), %d view(s). Type .help for commands.\n",
				res.Path, len(res.Tables), len(res.Views))

			s := &shell{ctx: cmd.Context(), app: a, path: res.Path, key: key, out: a.out}
			return s.run()
		},
	}
}

// shell is one interactive session on a single database.
type shell struct {
	ctx  context.Context
	app  *app
	path string
	key  string
	out  io.Writer

	buf strings.Builder
}

func (s *shell) run() error {
	historyFile := ""
	if err := os.MkdirAll(fsutil.ConfigDir(), 0o700); err == nil {
		historyFile = filepath.Join(fsutil.ConfigDir(), "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            shellPrompt,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         ".quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("starting shell: %w", err)
	}
	defer rl.Close()

	for {
		if s.pending() {
			rl.SetPrompt(shellContPrompt)
		} else {
			rl.SetPrompt(shellPrompt)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 && !s.pending() {
				return nil
			}
			s.buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := s.handle(line)
		if err != nil {
			pterm.Error.WithWriter(s.out).Println(err.Error())
		}
		if quit {
			return nil
		}
	}
}

// pending reports whether a statement is waiting for its terminating ";".
func (s *shell) pending() bool {
	return s.buf.Len() > 0
}

// handle processes one input line and reports whether the user quit.
func (s *shell) handle(line string) (bool, error) {
	trimmed := strings.TrimSpace(line)

	if !s.pending() {
		if trimmed == "" {
			return false, nil
		}
		if strings.HasPrefix(trimmed, ".") {
			return s.dot(strings.Fields(trimmed))
		}
	}

	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	if !strings.HasSuffix(trimmed, ";") {
		return false, nil
	}

	stmt := strings.TrimSuffix(strings.TrimSpace(s.buf.String()), ";")
	s.buf.Reset()
	if strings.TrimSpace(stmt) == "" {
		return false, nil
	}

	res, err := s.app.workbench.RunStatement(s.ctx, s.path, stmt, s.key)
	if err != nil {
		return false, err
	}
	if s.app.json {
		return false, printJSON(s.out, res)
	}
	return false, renderStatement(s.out, res)
}

func (s *shell) dot(fields []string) (bool, error) {
	wb := s.app.workbench

	switch fields[0] {
	case ".quit", ".exit":
		return true, nil

	case ".help":
		fmt.Fprint(s.out, shellHelp)
		return false, nil

	case ".tables":
		res, err := wb.Open(s.ctx, s.path, s.key)
		if err != nil {
			return false, err
		}
		renderNames(s.out, "Tables", res.Tables)
		renderNames(s.out, "Views", res.Views)
		return false, nil

	case ".schema":
		if len(fields) == 1 {
			objects, err := wb.Objects(s.ctx, s.path, s.key)
			if err != nil {
				return false, err
			}
			return false, renderObjects(s.out, objects)
		}
		sql, err := wb.ObjectDefinition(s.ctx, s.path, fields[1], s.key)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, sql)
		return false, nil

	case ".rows":
		if len(fields) < 2 {
			return false, errors.New("usage: .rows NAME [N]")
		}
		limit := 0
		if len(fields) > 2 {
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return false, fmt.Errorf("invalid row count %q", fields[2])
			}
			limit = n
		}
		data, err := wb.ListColumnsAndRows(s.ctx, s.path, fields[1], limit, s.key)
		if err != nil {
			return false, err
		}
		if s.app.json {
			return false, printJSON(s.out, data)
		}
		return false, renderTableData(s.out, data)

	default:
		return false, fmt.Errorf("unknown command %s (try .help)", fields[0])
	}
}
