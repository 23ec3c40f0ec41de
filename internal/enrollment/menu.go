package enrollment

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Menu is the interactive enrollment console.
type Menu struct {
	enroller *Enroller
	in       *bufio.Scanner
	out      io.Writer
	// before runs ahead of every capture, e.g. to tell the person to look
	// at the camera.
	before func()
}

// NewMenu creates a menu reading answers from in and writing to out.
func NewMenu(enroller *Enroller, in io.Reader, out io.Writer, beforeCapture func()) *Menu {
	return &Menu{enroller: enroller, in: bufio.NewScanner(in), out: out, before: beforeCapture}
}

// Run shows the menu until the operator exits, input ends or ctx is
// cancelled. Failed operations are reported and the menu continues.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "=== FACE DATABASE MANAGER ===")
		fmt.Fprintln(m.out, "1. Register a new face")
		fmt.Fprintln(m.out, "2. Delete a face")
		fmt.Fprintln(m.out, "3. View all registered faces")
		fmt.Fprintln(m.out, "4. Exit")

		choice, ok := m.prompt("Enter your choice: ")
		if !ok {
			return m.in.Err()
		}
		switch choice {
		case "1":
			m.register(ctx)
		case "2":
			m.remove()
		case "3":
			m.view()
		case "4":
			fmt.Fprintln(m.out, "Exiting.")
			return nil
		default:
			fmt.Fprintln(m.out, "Invalid choice. Please try again.")
		}
	}
}

func (m *Menu) prompt(label string) (string, bool) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) register(ctx context.Context) {
	name, ok := m.prompt("Enter the person's name to register: ")
	if !ok {
		return
	}
	if m.before != nil && name != "" {
		m.before()
	}
	ident, err := m.enroller.Enroll(ctx, name)
	if err != nil {
		fmt.Fprintln(m.out, Describe(err))
		return
	}
	fmt.Fprintf(m.out, "%s registered successfully (%s).\n", ident.Name, ident.ID)
}

func (m *Menu) remove() {
	name, ok := m.prompt("Enter the person's name to delete: ")
	if !ok {
		return
	}
	removed, err := m.enroller.Remove(name)
	switch {
	case err != nil:
		fmt.Fprintln(m.out, Describe(err))
	case removed:
		fmt.Fprintf(m.out, "%s deleted successfully.\n", name)
	default:
		fmt.Fprintln(m.out, "Name not found in database.")
	}
}

func (m *Menu) view() {
	identities, err := m.enroller.List()
	if err != nil {
		fmt.Fprintln(m.out, Describe(err))
		return
	}
	if len(identities) == 0 {
		fmt.Fprintln(m.out, "No faces registered yet.")
		return
	}
	fmt.Fprintln(m.out, "Registered faces:")
	for _, ident := range identities {
		fmt.Fprintf(m.out, " - %s\n", ident.Name)
	}
}
