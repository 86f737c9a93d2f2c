package client

import (
	"errors"
	"strings"
)

type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdJoin
	CmdLeave
	CmdSay
)

type Command struct {
	Kind CommandKind
	Arg  string
}

var ErrJoinUsage = errors.New("join needs a room name")

// ParseCommand reads one input line: "join <room>", "leave", or chat text.
// Only the first word after join is used as the room name.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
		return Command{Kind: CmdNone}, nil
	case line == "join" || strings.HasPrefix(line, "join "):
		fields := strings.Fields(strings.TrimPrefix(line, "join"))
		if len(fields) == 0 {
			return Command{}, ErrJoinUsage
		}
		return Command{Kind: CmdJoin, Arg: fields[0]}, nil
	case line == "leave":
		return Command{Kind: CmdLeave}, nil
	default:
		return Command{Kind: CmdSay, Arg: line}, nil
	}
}
