package main

import (
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// confirmRewrite asks for confirmation on an interactive terminal. Without a
// terminal on stdin and stdout it proceeds, so scripts and CI need no --yes.
func confirmRewrite(title string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return true, nil
	}

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description("Files are rewritten in place. Use --dry-run to preview.").
				Affirmative("Rewrite").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}
