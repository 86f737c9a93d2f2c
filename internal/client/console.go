package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Console renders chat output. Writes are serialized so the receiver and
// the input loop can share it.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	sender lipgloss.Style
	status lipgloss.Style
	info   lipgloss.Style
	err    lipgloss.Style
}

func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:    out,
		sender: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		status: r.NewStyle().Foreground(lipgloss.Color("10")),
		info:   r.NewStyle().Faint(true),
		err:    r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func (c *Console) Chat(sender, text string) {
	c.println(c.sender.Render(sender) + ": " + text)
}

func (c *Console) Status(label, text string) {
	c.println(c.status.Render("["+label+"]") + " " + text)
}

func (c *Console) Info(text string) { c.println(c.info.Render(text)) }

func (c *Console) Error(text string) { c.println(c.err.Render(text)) }

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}
