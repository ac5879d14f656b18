// cmd/tools/template-sealer/main.go
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"astro-backend-llm/internal/common/config"
	"astro-backend-llm/internal/common/secret"
)

const passphraseEnv = "SECRET_PASSPHRASE"

type keyFlags struct {
	passphrase string
	label      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "template-sealer",
		Short: "Seal and inspect the encrypted instruction template",
		Long: `Encrypts the instruction template with a key derived from the service passphrase,
and verifies sealed files the server will load at startup.

Example:
  SECRET_PASSPHRASE=... template-sealer seal --in prompt.txt --out secrets/template.enc`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSealCmd(), newVerifyCmd(), newDeriveKeyCmd())
	return rootCmd
}

func addKeyFlags(cmd *cobra.Command, kf *keyFlags) {
	cmd.Flags().StringVar(&kf.passphrase, "passphrase", "", "Passphrase (defaults to $"+passphraseEnv+")")
	cmd.Flags().StringVar(&kf.label, "kdf-label", config.DefaultKDFLabel, "Key derivation label")
}

func (kf *keyFlags) store() (*secret.Store, error) {
	passphrase := kf.passphrase
	if passphrase == "" {
		passphrase = os.Getenv(passphraseEnv)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required: pass --passphrase or set %s", passphraseEnv)
	}
	return secret.NewStore(passphrase, kf.label)
}

func newSealCmd() *cobra.Command {
	var (
		kf          keyFlags
		in, out     string
		placeholder string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a plaintext template file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kf.store()
			if err != nil {
				return err
			}

			plaintext, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			if !strings.Contains(string(plaintext), placeholder) {
				return fmt.Errorf("template does not contain placeholder %q", placeholder)
			}

			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", out)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			token, err := store.Encrypt(plaintext)
			if err != nil {
				return fmt.Errorf("encrypt template: %w", err)
			}
			if err := os.WriteFile(out, token, 0o600); err != nil {
				return fmt.Errorf("write sealed template: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sealed %d bytes into %s\n", len(plaintext), out)
			return nil
		},
	}

	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&in, "in", "", "Plaintext template file")
	cmd.Flags().StringVar(&out, "out", "", "Destination for the sealed template")
	cmd.Flags().StringVar(&placeholder, "placeholder", config.DefaultPlaceholder, "Prompt placeholder the template must contain")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing sealed file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		kf          keyFlags
		in          string
		placeholder string
		printText   bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a sealed template decrypts and contains the placeholder",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kf.store()
			if err != nil {
				return err
			}

			text, err := store.Decrypt(in)
			if err != nil {
				return err
			}
			if _, err := secret.NewTemplate(text, placeholder); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ok: %s decrypts to %d characters, placeholder %q present\n",
				in, len([]rune(text)), placeholder)
			if printText {
				fmt.Fprintln(w, text)
			}
			return nil
		},
	}

	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&in, "in", "", "Sealed template file")
	cmd.Flags().StringVar(&placeholder, "placeholder", config.DefaultPlaceholder, "Prompt placeholder the template must contain")
	cmd.Flags().BoolVar(&printText, "print", false, "Print the decrypted template")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newDeriveKeyCmd() *cobra.Command {
	var kf keyFlags

	cmd := &cobra.Command{
		Use:   "derive-key",
		Short: "Print the Fernet key derived from the passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kf.store()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.Key())
			return nil
		},
	}

	addKeyFlags(cmd, &kf)
	return cmd
}
