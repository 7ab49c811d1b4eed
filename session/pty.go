package session

import (
	"fmt"
	"io"
	"log"
	"os/exec"

	"github.com/creack/pty"
)

func spawnPTY(s *Session, onExit func(id string)) error {
	cmd := exec.Command("sh", "-c", s.command)
	cmd.Env = append(cmd.Environ(), "TERM=xterm-256color", "SKETCH="+s.Sketch, "SKETCH_HOST="+s.Name)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	if err := disableCanon(ptmx); err != nil {
		cmd.Process.Kill() //nolint:errcheck
		ptmx.Close()
		cmd.Wait() //nolint:errcheck
		return fmt.Errorf("configure pty: %w", err)
	}
	s.ptmx = ptmx
	s.cmd = cmd

	go readLoop(s, ptmx, func() {
		cmd.Wait() //nolint:errcheck
		onExit(s.ID)
	})
	return nil
}

// readLoop feeds renderer output into s until r fails, then closes s.done and
// calls exit.
func readLoop(s *Session, r io.Reader, exit func()) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.record(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("sketch host %s (%s) read ended: %v", s.Name, s.ID, err)
			}
			close(s.done)
			exit()
			return
		}
	}
}
