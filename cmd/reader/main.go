package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/codelif/futexsync/internal/shmlog"
)

func main() {
	l, err := shmlog.New()
	if err != nil {
		log.Fatal("creating shared log", "err", err)
	}
	defer l.Close()

	// hand this path to cmd/writer
	fmt.Println(l.Path())

	if _, err := io.Copy(os.Stdout, l.NewReader()); err != nil {
		log.Fatal("reading shared log", "err", err)
	}
}
