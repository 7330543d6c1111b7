package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/omriShneor/rustdex/bitcask"
	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal"
	"github.com/omriShneor/rustdex/internal/utils"
)

func main() {
	host := flag.String("host", internal.DEFAULT_HOST, "Bitcask server host")
	port := flag.Int("port", internal.DEFAULT_PORT, "Bitcask server port")
	timeout := flag.Duration("timeout", internal.DEFAULT_DIAL_TIMEOUT, "Connection timeout")
	eval := flag.String("e", "", "Run a single command and exit")
	flag.Parse()

	client, err := bitcask.Connect(
		bitcask.WithHost(*host),
		bitcask.WithPort(*port),
		bitcask.WithDialTimeout(*timeout),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if *eval != "" {
		if err := run(client, *eval, os.Stdout); err != nil {
			client.Close()
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("Connected to %v:%d\n", *host, *port)
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	repl(client, os.Stdin, os.Stdout)
}

func repl(client *bitcask.Client, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				fmt.Fprintln(out, "input error:", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			return
		}

		err = run(client, line, out)
		if errors.Is(errors.IO, err) {
			// The connection is gone; nothing further can succeed.
			fmt.Fprintln(out, err)
			return
		}
		if err != nil {
			fmt.Fprintln(out, "(error)", err)
		}
	}
}

// run parses and executes one command line, printing the reply.
func run(client *bitcask.Client, line string, out io.Writer) error {
	cmd, key, value, err := utils.SplitStringIntoCommandAndArguments(line)
	if err != nil {
		return err
	}

	resp, err := client.Execute(cmd, key, value)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, resp)
	return nil
}
