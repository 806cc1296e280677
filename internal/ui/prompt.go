package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// Prompter asks the user for a single line of input.
type Prompter func(title, description string) (string, error)

// PromptInput reads a non-empty value from the terminal with a huh input.
func PromptInput(title, description string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		Description(description).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
