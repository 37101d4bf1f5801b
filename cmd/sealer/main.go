package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hamed0406/pulsewatch/internal/secrets"
)

const usage = `usage: sealer [-seed SEED] <command> [value]

commands:
  encrypt [plaintext]   print an enc:rsa:v1: token for a connection target
  decrypt [token]       print the plaintext of a token
  write-keys DIR        write the derived private.pem/public.pem to DIR

The seed defaults to $SECRET_SEED. When value is omitted it is read from stdin.
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("sealer", flag.ContinueOnError)
	seed := fs.String("seed", os.Getenv("SECRET_SEED"), "keypair seed")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing command")
	}

	kr, err := secrets.NewKeyring(*seed, secrets.DefaultKeyBits)
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "encrypt":
		in, err := valueOrStdin(rest, stdin, "Enter a connection target to seal: ", stdout)
		if err != nil {
			return err
		}
		tok, err := kr.Encrypt(in)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, tok)
	case "decrypt":
		in, err := valueOrStdin(rest, stdin, "Enter a token: ", stdout)
		if err != nil {
			return err
		}
		out, err := kr.Decrypt(in)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
	case "write-keys":
		if len(rest) != 1 {
			return errors.New("write-keys needs a directory")
		}
		if err := secrets.WriteKeys(rest[0], kr.PrivateKey()); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "✔ keys written to", rest[0])
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func valueOrStdin(rest []string, stdin io.Reader, prompt string, stdout io.Writer) (string, error) {
	if len(rest) > 0 {
		return strings.TrimSpace(strings.Join(rest, " ")), nil
	}
	if f, ok := stdin.(*os.File); ok {
		if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(stdout, prompt)
		}
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}
