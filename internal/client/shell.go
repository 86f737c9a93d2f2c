package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Console texts.
const (
	WelcomeFormat   = "Bienvenido, %s. Usa 'join <sala>' para entrar."
	UsageJoin       = "Uso: join <sala>"
	NotInRoom       = "No estás en ninguna sala."
	NotInRoomToSend = "No estás en ninguna sala. Usa 'join <sala>' primero."
	Goodbye         = "Cliente terminado."
)

// Shell turns input lines into session calls.
type Shell struct {
	s  *Session
	ui *Console
}

func NewShell(s *Session, ui *Console) *Shell {
	return &Shell{s: s, ui: ui}
}

// Run reads lines from in until EOF or ctx is done. Both end the loop
// without error.
func (sh *Shell) Run(ctx context.Context, in io.Reader) error {
	sh.ui.Info(fmt.Sprintf(WelcomeFormat, sh.s.User()))

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			sh.Exec(ctx, line)
		}
	}
}

// Exec runs one input line.
func (sh *Shell) Exec(ctx context.Context, line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		sh.ui.Info(UsageJoin)
		return
	}
	switch cmd.Kind {
	case CmdJoin:
		err = sh.s.Join(ctx, cmd.Arg)
	case CmdLeave:
		err = sh.s.Leave(ctx)
		if errors.Is(err, ErrNotInRoom) {
			sh.ui.Info(NotInRoom)
			return
		}
	case CmdSay:
		err = sh.s.Send(ctx, cmd.Arg)
		if errors.Is(err, ErrNotInRoom) {
			sh.ui.Info(NotInRoomToSend)
			return
		}
	case CmdNone:
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "client.shell").Msg("command failed")
		sh.ui.Error(err.Error())
	}
}
