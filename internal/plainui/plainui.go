// Package plainui is the line-oriented host adapter, used when stdout is
// not a TTY and in scripted runs.
package plainui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"story_draft_agent/internal/export"
	"story_draft_agent/internal/session"
)

// Run reads one line per submission and prints the transcript delta after
// each cycle. The controller stays the single owner of the transcript.
func Run(ctx context.Context, ctrl *session.Controller, in io.Reader, out io.Writer) error {
	if ctrl == nil {
		return errors.New("session controller is required")
	}

	printed := 0
	flush := func() {
		s := ctrl.Snapshot()
		for ; printed < len(s.Turns); printed++ {
			printTurn(out, s, printed)
		}
		if s.Banner != "" {
			fmt.Fprintln(out, "! "+s.Banner)
		}
	}
	flush()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		switch {
		case text == "/exit" || text == "/quit":
			return nil
		case text == "/help":
			for _, g := range ctrl.Registry().Generators() {
				if strings.TrimSpace(g.Usage) != "" {
					fmt.Fprintln(out, "  "+g.Usage)
				}
			}
			fmt.Fprintln(out, "  /approve [n]\n  /reset\n  /export [file]\n  /exit")
			continue
		case text == "/reset":
			ctrl.Reset()
			printed = 0
			flush()
			continue
		case strings.HasPrefix(text, "/export"):
			path := strings.TrimSpace(strings.TrimPrefix(text, "/export"))
			if path == "" {
				path = "transcript.html"
			}
			if err := export.WriteHTML(path, ctrl.Snapshot()); err != nil {
				fmt.Fprintln(out, "! export failed:", err)
			} else {
				fmt.Fprintln(out, "transcript exported to "+path)
			}
			continue
		case strings.HasPrefix(text, "/approve"):
			arg := strings.TrimSpace(strings.TrimPrefix(text, "/approve"))
			index, err := approve(ctx, ctrl, arg)
			if err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			// approval patches an existing turn in place; report its
			// new status instead of waiting for a new turn to appear
			s := ctrl.Snapshot()
			g := s.Turns[index].Generation
			switch {
			case g.Saved():
				fmt.Fprintln(out, "Saved: "+g.SavedLocation)
			case g.LastError != "":
				fmt.Fprintln(out, "! approval failed: "+g.LastError)
			}
			continue
		}

		if err := ctrl.Submit(ctx, text); err != nil {
			fmt.Fprintln(out, "!", err)
			continue
		}
		flush()
	}
}

func approve(ctx context.Context, ctrl *session.Controller, arg string) (int, error) {
	s := ctrl.Snapshot()
	var previews []int
	for i, t := range s.Turns {
		if t.Generation != nil {
			previews = append(previews, i)
		}
	}
	if len(previews) == 0 {
		return 0, errors.New("nothing to approve yet")
	}

	index := -1
	if arg == "" {
		for i := len(previews) - 1; i >= 0; i-- {
			if !s.Turns[previews[i]].Generation.Saved() {
				index = previews[i]
				break
			}
		}
		if index < 0 {
			return 0, errors.New("every preview is already saved")
		}
	} else {
		n := 0
		if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n < 1 || n > len(previews) {
			return 0, fmt.Errorf("no preview #%s", arg)
		}
		index = previews[n-1]
	}
	if err := ctrl.Approve(ctx, index); err != nil {
		return 0, err
	}
	return index, nil
}

func printTurn(out io.Writer, s session.State, index int) {
	turn := s.Turns[index]
	label := "You"
	if turn.Speaker == session.SpeakerAssistant {
		label = "Assistant"
	}
	fmt.Fprintf(out, "%s:\n", label)
	if strings.TrimSpace(turn.Text) != "" {
		fmt.Fprintln(out, indent(turn.Text))
	}
	if g := turn.Generation; g != nil {
		num := previewNumber(s, index)
		fmt.Fprintf(out, "  [%s preview #%d — /approve %d to save]\n", g.Kind, num, num)
		fmt.Fprintln(out, indent(g.PreviewBody))
		switch {
		case g.Saved():
			fmt.Fprintln(out, "  Saved: "+g.SavedLocation)
		case g.LastError != "":
			fmt.Fprintln(out, "  Approval failed: "+g.LastError)
		}
	}
	if len(turn.Citations) > 0 {
		refs := make([]string, len(turn.Citations))
		for i, c := range turn.Citations {
			refs[i] = c.Ref
		}
		fmt.Fprintln(out, "  Sources: "+strings.Join(refs, ", "))
	}
}

func previewNumber(s session.State, index int) int {
	num := 0
	for i := 0; i <= index; i++ {
		if s.Turns[i].Generation != nil {
			num++
		}
	}
	return num
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
