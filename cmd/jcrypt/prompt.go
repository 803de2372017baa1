package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// promptMissingPasswords asks for the passwords not given as flags. An empty answer leaves
// the password unset.
func promptMissingPasswords() error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return errors.New("--prompt needs an interactive terminal")
	}

	if cryptDecrypt == "" && !cryptCrack {
		pw, err := promptPassword("Decrypt password (empty to skip): ")
		if err != nil {
			return err
		}
		cryptDecrypt = pw
	}

	if cryptEncrypt == "" {
		pw, err := promptPassword("Encrypt password (empty to skip): ")
		if err != nil {
			return err
		}
		if pw != "" {
			confirm, err := promptPassword("Confirm encrypt password: ")
			if err != nil {
				return err
			}
			if confirm != pw {
				return errors.New("passwords do not match")
			}
		}
		cryptEncrypt = pw
	}

	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // New line after password

	if err != nil {
		return "", err
	}

	return string(password), nil
}
