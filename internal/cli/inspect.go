package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/spf13/cobra"

	"github.com/codelif/futexsync/shm"
)

var ErrBadLayout = errors.New("invalid layout entry")

// A field is one primitive placed at an offset of a region.
type field struct {
	kind   string
	offset int
}

type inspectArgs struct {
	layout   []string
	interval time.Duration
	once     bool
}

// NewInspectCmd returns the inspect command.
func NewInspectCmd() *cobra.Command {
	args := &inspectArgs{}

	cmd := &cobra.Command{
		Use:   "inspect PATH",
		Short: "Watch the primitives inside a shared memory region",
		Long: `Map a shared region (for example /proc/<pid>/fd/<fd>) and show the live
state of the primitives at the offsets given with --layout, as kind@offset
pairs. Kinds are mutex, rwlock, condvar, once and word.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, pos []string) error {
			fields, err := parseLayout(args.layout)
			if err != nil {
				return err
			}

			r, err := shm.Open(pos[0])
			if err != nil {
				return err
			}
			defer r.Close()

			// validates every field before anything is drawn
			lines, err := render(r.Bytes(), fields)
			if err != nil {
				return err
			}

			if args.once {
				for _, l := range lines {
					fmt.Fprintln(cc.OutOrStdout(), l)
				}
				return nil
			}

			return watch(pos[0], r.Bytes(), fields, args.interval)
		},
	}

	cmd.Flags().StringSliceVarP(&args.layout, "layout", "l", []string{"word@0"}, "Primitives to show, as kind@offset")
	cmd.Flags().DurationVar(&args.interval, "interval", 100*time.Millisecond, "Refresh interval")
	cmd.Flags().BoolVar(&args.once, "once", false, "Print the state once instead of watching")

	return cmd
}

func parseLayout(entries []string) ([]field, error) {
	fields := make([]field, 0, len(entries))
	for _, e := range entries {
		kind, off, ok := strings.Cut(e, "@")
		if !ok {
			return nil, fmt.Errorf("%w: %q, want kind@offset", ErrBadLayout, e)
		}
		n, err := strconv.ParseInt(off, 0, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad offset in %q", ErrBadLayout, e)
		}
		switch kind {
		case "mutex", "rwlock", "condvar", "once", "word":
		default:
			return nil, fmt.Errorf("%w: unknown kind %q", ErrBadLayout, kind)
		}
		fields = append(fields, field{kind: kind, offset: int(n)})
	}
	return fields, nil
}

func render(mem []byte, fields []field) ([]string, error) {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		s, err := describe(mem, f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("0x%04x  %-8s %s", f.offset, f.kind, s))
	}
	return lines, nil
}

func describe(mem []byte, f field) (string, error) {
	var (
		s   fmt.Stringer
		err error
	)
	switch f.kind {
	case "mutex":
		s, err = shm.At[shm.Mutex](mem, f.offset)
	case "rwlock":
		s, err = shm.At[shm.RwLock](mem, f.offset)
	case "condvar":
		s, err = shm.At[shm.Condvar](mem, f.offset)
	case "once":
		s, err = shm.At[shm.Once](mem, f.offset)
	case "word":
		var w *uint32
		w, err = shm.At[uint32](mem, f.offset)
		if err == nil {
			return fmt.Sprintf("0x%08x", *w), nil
		}
	}
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func watch(path string, mem []byte, fields []field, interval time.Duration) error {
	vx, err := vaxis.New(vaxis.Options{})
	if err != nil {
		return err
	}
	defer vx.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, err := render(mem, fields)
		if err != nil {
			return err
		}

		win := vx.Window()
		win.Clear()
		win.Print(vaxis.Segment{Text: path + "  (q to quit)\n\n" + strings.Join(lines, "\n")})
		vx.Render()

		select {
		case ev := <-vx.Events():
			switch ev := ev.(type) {
			case vaxis.Key:
				switch ev.String() {
				case "Ctrl+c", "q":
					return nil
				}
			}
		case <-ticker.C:
		}
	}
}
