// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/sealed"
)

// secretCommand returns the top-level "secret" command with all
// subcommands.
func secretCommand() *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "Generate keys and seal pipeline secrets",
		Description: `Manage the age keys and sealed values used by pipeline secrets.

Pipeline files carry secrets as base64 age ciphertext in their
"secrets" map. At run time the engine decrypts them with the
configured identity and injects the plaintext into the command
environment. Sealing happens here, wherever the plaintext lives;
the pipeline file itself stays safe to commit.`,
		Subcommands: []*cli.Command{
			secretKeygenCommand(),
			secretEncryptCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Generate an engine identity",
				Command:     "gantry secret keygen --output ~/.config/gantry/identity.key",
			},
			{
				Description: "Seal a deploy token for a pipeline file",
				Command:     "gantry secret encrypt --recipient age1ql3z... deploy-token.txt",
			},
		},
	}
}

type secretKeygenParams struct {
	Output string `flag:"output,o" desc:"write the private key to this file (mode 0600) instead of stderr"`
}

func secretKeygenCommand() *cli.Command {
	var params secretKeygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair",
		Usage:   "gantry secret keygen [flags]",
		Description: `Generate a new age X25519 keypair. The public key (age1...) goes to
stdout for embedding in "gantry secret encrypt --recipient" calls.
The private key goes to stderr, or to a file with --output; point
secrets.identity_path (or --identity on "gantry run") at that file.`,
		Examples: []cli.Example{
			{
				Description: "Generate and store the engine identity",
				Command:     "gantry secret keygen --output ~/.config/gantry/identity.key",
			},
		},
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			defer keypair.Close()

			if params.Output != "" {
				if err := os.WriteFile(params.Output, []byte(keypair.PrivateKey.String()+"\n"), 0o600); err != nil {
					return fmt.Errorf("writing private key: %w", err)
				}
				fmt.Fprintf(os.Stderr, "# Private key written to %s\n", params.Output)
			} else {
				fmt.Fprintf(os.Stderr, "# Private key (keep this secret, store securely):\n")
				fmt.Fprintf(os.Stderr, "%s\n", keypair.PrivateKey.String())
			}
			fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
			return nil
		},
	}
}

type secretEncryptParams struct {
	Recipient []string `flag:"recipient,r" desc:"age public key to encrypt to (repeatable, at least one required)"`
}

func secretEncryptCommand() *cli.Command {
	var params secretEncryptParams

	return &cli.Command{
		Name:    "encrypt",
		Summary: "Seal a value for a pipeline secrets map",
		Usage:   "gantry secret encrypt --recipient <age1...> [<file>]",
		Description: `Encrypt a plaintext to one or more age recipients and print the
base64 ciphertext, ready to paste into a pipeline file's "secrets"
map. The plaintext is read from the file argument, or from stdin
when no argument is given.

Encrypt to every identity that must run the pipeline. A common
pattern is two recipients: the CI host's key and an operator escrow
key.`,
		Examples: []cli.Example{
			{
				Description: "Seal a token file",
				Command:     "gantry secret encrypt --recipient age1ql3z... deploy-token.txt",
			},
			{
				Description: "Seal from stdin for two recipients",
				Command:     "echo -n \"$TOKEN\" | gantry secret encrypt -r age1ql3z... -r age1xk2v...",
			},
		},
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(params.Recipient) == 0 {
				return fmt.Errorf("--recipient is required")
			}
			for _, recipient := range params.Recipient {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return err
				}
			}

			var plaintext []byte
			var err error
			switch len(args) {
			case 0:
				plaintext, err = io.ReadAll(os.Stdin)
			case 1:
				plaintext, err = os.ReadFile(args[0])
			default:
				return fmt.Errorf("usage: gantry secret encrypt --recipient <age1...> [<file>]")
			}
			if err != nil {
				return fmt.Errorf("reading plaintext: %w", err)
			}

			ciphertext, err := sealed.Encrypt(plaintext, params.Recipient)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s\n", ciphertext)
			return nil
		},
	}
}
