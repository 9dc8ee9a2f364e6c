package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/client"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 12345
)

func main() {
	host := flag.String("host", defaultHost, "Relay host")
	port := flag.Int("port", defaultPort, "Relay port")
	flag.Parse()

	stdin := bufio.NewReader(os.Stdin)
	caps := client.DetectCapabilities(os.Stdin)

	if caps.Keystrokes && !flagsGiven("host", "port") {
		*host = ask(stdin, fmt.Sprintf("Server IP [%s]: ", defaultHost), defaultHost)
		portText := ask(stdin, fmt.Sprintf("Port [%d]: ", defaultPort), strconv.Itoa(defaultPort))
		p, err := strconv.Atoi(portText)
		if err != nil {
			fmt.Printf("Invalid port %q\n", portText)
			os.Exit(1)
		}
		*port = p
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	c, err := client.Dial(context.Background(), addr)
	if err != nil {
		fmt.Printf("Could not connect to %s. Is the server running?\n", addr)
		os.Exit(1)
	}

	welcome, err := c.Welcome()
	if err != nil {
		fmt.Println("Disconnected from server.")
		_ = c.Close()
		os.Exit(1)
	}
	fmt.Print(welcome)

	nickname, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		_ = c.Close()
		os.Exit(1)
	}
	if err := c.Join(nickname); err != nil {
		fmt.Println("Disconnected from server.")
		_ = c.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, restore, err := client.SelectStrategy(os.Stdin, caps)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	var out io.Writer = os.Stdout
	var in = strategyInput(strategy, stdin)
	if _, raw := strategy.(*client.CharInput); raw {
		out = client.RawConsole{W: os.Stdout}
	}

	_ = c.Run(ctx, in, out)
	_ = restore()
	fmt.Println("Goodbye!")
}

// strategyInput keeps bytes already buffered from stdin during the prompts
// when falling back to line input.
func strategyInput(strategy client.InputStrategy, buffered *bufio.Reader) client.InputStrategy {
	if _, ok := strategy.(*client.LineInput); ok {
		return client.NewLineInput(buffered)
	}
	return strategy
}

func ask(r *bufio.Reader, prompt, fallback string) string {
	fmt.Print(prompt)
	line, _ := r.ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return fallback
}

func flagsGiven(names ...string) bool {
	given := false
	flag.Visit(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				given = true
			}
		}
	})
	return given
}
