package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"exocal/internal/calendar"
	"exocal/internal/editor"
	"exocal/internal/model"
	"exocal/internal/remote"
	"exocal/internal/remote/authclient"
	"exocal/internal/session"
)

// terminal owns the interactive prompt: sign-in, delete confirmations and
// the command loop. It also satisfies editor.Confirmer.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) prompt(label string) (string, error) {
	fmt.Fprint(t.out, label)
	line, err := t.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword masks input when stdin is a real terminal and falls back
// to a plain line otherwise (tests, pipes).
func (t *terminal) readPassword(label string) (string, error) {
	fmt.Fprint(t.out, label)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(t.out)
		return string(b), err
	}
	line, err := t.in.ReadString('\n')
	return strings.TrimSpace(line), err
}

func (t *terminal) Confirm(prompt string) bool {
	answer, err := t.prompt(prompt + " [y/N] ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// signIn prompts for credentials until the provider accepts them. Typing
// "reset" at the email prompt sends a password-reset message instead.
func (t *terminal) signIn(ctx context.Context, provider *authclient.Client) (*remote.Identity, error) {
	for {
		email, err := t.prompt("Email (or \"reset\"): ")
		if err != nil {
			return nil, err
		}
		if email == "reset" {
			target, err := t.prompt("Send password reset to: ")
			if err != nil {
				return nil, err
			}
			if err := provider.SendPasswordReset(ctx, target); err != nil {
				fmt.Fprintf(t.out, "Reset failed: %v\n", err)
			} else {
				fmt.Fprintln(t.out, "Reset email sent.")
			}
			continue
		}
		if email == "" {
			continue
		}

		password, err := t.readPassword("Password: ")
		if err != nil {
			return nil, err
		}

		ident, err := provider.SignIn(ctx, email, password)
		if err != nil {
			fmt.Fprintf(t.out, "Sign-in failed: %v\n", err)
			continue
		}
		return ident, nil
	}
}

const helpText = `Commands:
  next | prev        change displayed month
  show YYYY-MM       jump to a month
  refresh            repaint the current month
  add YYYY-MM-DD     create an event (uploader only)
  edit ID            edit an event (uploader only)
  del ID             delete an event (uploader only)
  post MESSAGE       post an announcement (uploader only)
  list               list the cached events with their ids
  logout             sign out and exit
  quit               exit
`

// run processes commands until the input closes, quit is entered or the
// context is cancelled.
func (t *terminal) run(ctx context.Context, ctrl *calendar.Controller, workflow *editor.Workflow, provider *authclient.Client, vault *session.Vault) {
	for {
		line, err := t.prompt("> ")
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "":
		case "help":
			fmt.Fprint(t.out, helpText)
		case "next":
			ctrl.NextMonth()
		case "prev":
			ctrl.PrevMonth()
		case "show":
			month, err := time.Parse("2006-01", rest)
			if err != nil {
				fmt.Fprintln(t.out, "usage: show YYYY-MM")
				continue
			}
			ctrl.ShowMonth(month.Year(), month.Month())
		case "refresh":
			ctrl.Refresh()
		case "list":
			t.listEvents(ctrl)
		case "add":
			t.addEvent(ctx, workflow, rest)
		case "edit":
			t.editEvent(ctx, ctrl, workflow, rest)
		case "del":
			if err := workflow.Delete(ctx, rest); err != nil {
				fmt.Fprintf(t.out, "Delete failed: %v\n", err)
			}
		case "post":
			if err := workflow.PostAnnouncement(ctx, rest); err != nil {
				fmt.Fprintf(t.out, "Post failed: %v\n", err)
			}
		case "logout":
			if err := provider.SignOut(ctx); err != nil {
				fmt.Fprintf(t.out, "Sign-out failed: %v\n", err)
			}
			if vault != nil {
				vault.Delete(session.VaultEntryRefreshToken)
			}
			return
		case "quit", "exit":
			return
		default:
			fmt.Fprintf(t.out, "Unknown command %q; try help\n", cmd)
		}
	}
}

func (t *terminal) listEvents(ctrl *calendar.Controller) {
	events := ctrl.Events()
	if len(events) == 0 {
		fmt.Fprintln(t.out, "No events this month.")
		return
	}
	for _, e := range events {
		fmt.Fprintf(t.out, "  %s  %s  %s\n", e.ID, e.Date, e.Description)
	}
}

func (t *terminal) addEvent(ctx context.Context, workflow *editor.Workflow, date string) {
	form := workflow.Open(nil, date)
	if form.ReadOnly {
		fmt.Fprintln(t.out, "Your account cannot add events.")
		return
	}
	t.fillForm(form)
	if err := workflow.Submit(ctx, form); err != nil {
		fmt.Fprintf(t.out, "Save failed: %s\n", form.Error)
		return
	}
	fmt.Fprintf(t.out, "Saved event %s.\n", form.Event.ID)
}

func (t *terminal) editEvent(ctx context.Context, ctrl *calendar.Controller, workflow *editor.Workflow, id string) {
	var found *model.CalendarEvent
	for _, e := range ctrl.Events() {
		if e.ID == id {
			ev := e
			found = &ev
			break
		}
	}
	if found == nil {
		fmt.Fprintf(t.out, "No event %q in the displayed month.\n", id)
		return
	}

	form := workflow.Open(found, "")
	if form.ReadOnly {
		fmt.Fprintln(t.out, "Your account cannot edit events.")
		return
	}
	t.fillForm(form)
	if err := workflow.Submit(ctx, form); err != nil {
		fmt.Fprintf(t.out, "Save failed: %s\n", form.Error)
		return
	}
	fmt.Fprintln(t.out, "Saved.")
}

// fillForm prompts for each field; an empty answer keeps the current
// value, a single "-" clears it.
func (t *terminal) fillForm(form *editor.Form) {
	form.Event.Date = t.field("Date", form.Event.Date)
	form.Event.StartTime = t.field("Start (HH:MM)", form.Event.StartTime)
	form.Event.EndTime = t.field("End (HH:MM)", form.Event.EndTime)
	form.Event.Location = t.field("Location", form.Event.Location)
	form.Event.Description = t.field("Description", form.Event.Description)
}

func (t *terminal) field(label, current string) string {
	answer, err := t.prompt(fmt.Sprintf("%s [%s]: ", label, current))
	if err != nil || answer == "" {
		return current
	}
	if answer == "-" {
		return ""
	}
	return answer
}
