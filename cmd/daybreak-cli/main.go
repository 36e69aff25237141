package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/daybreak"
	"github.com/0xRadioAc7iv/go-daybreak/internal"
	"github.com/0xRadioAc7iv/go-daybreak/internal/utils"
)

func main() {
	host := flag.String("host", internal.DEFAULT_HOST, "Daybreak server host")
	port := flag.Int("port", internal.DEFAULT_PORT, "Daybreak server port")
	timeout := flag.Duration("timeout", internal.DEFAULT_TIMEOUT, "Per command timeout (0 waits forever)")
	flag.Parse()

	client, err := daybreak.Connect(
		daybreak.WithHost(*host),
		daybreak.WithPort(*port),
		daybreak.WithTimeout(*timeout),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	fmt.Printf("Connected to %v:%d\n", *host, *port)
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("input error:", err)
			return
		}

		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		if line == "exit" {
			return
		}

		cmd, key, value, err := utils.SplitStringIntoCommandAndArguments(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}

		start := time.Now()
		resp, err := client.Execute(cmd, key, value)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(resp)
		if cmd == "compact" || cmd == "load" {
			fmt.Printf("(%v)\n", time.Since(start).Round(time.Millisecond))
		}
	}
}
