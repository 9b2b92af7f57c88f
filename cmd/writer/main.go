package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/codelif/futexsync/internal/shmlog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s /proc/<pid>/fd/<fd>\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]

	l, err := shmlog.Attach(path)
	if err != nil {
		log.Fatal("attaching shared log", "path", path, "err", err)
	}
	defer l.Close()

	log.Info("attached", "path", path)

	w := l.NewWriter()
	_, err = io.Copy(w, os.Stdin)
	// closing lets the reader drain and exit
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatal("writing shared log", "err", err)
	}
}
