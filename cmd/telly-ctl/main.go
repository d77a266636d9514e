package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"telly/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Daemon control socket")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: telly-ctl [-s socket] trigger | say <text...>")
		cli.PrintDefaults()
	}
	cli.Parse()

	var msg ipc.ControlMessage
	switch args := cli.Args(); {
	case len(args) == 0 || args[0] == ipc.CmdTrigger:
		msg.Cmd = ipc.CmdTrigger
	case args[0] == "say" && len(args) > 1:
		msg = ipc.ControlMessage{Cmd: ipc.CmdText, Text: strings.Join(args[1:], " ")}
	default:
		cli.Usage()
		os.Exit(2)
	}

	if err := ipc.SendCommand(*socket, msg); err != nil {
		fmt.Println("telly not running:", err)
		os.Exit(1)
	}
}
