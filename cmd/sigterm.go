package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/n0rad/go-erlog/logs"

	"github.com/VoxDroid/relman/internal/orchestrator"
)

// SigtermService is an oklog/run actor that returns once SIGINT or SIGTERM
// is received, which interrupts the operation running next to it.
type SigtermService struct {
	stop chan struct{}
	term chan os.Signal
}

func (s *SigtermService) Init() {
	s.stop = make(chan struct{})
	s.term = make(chan os.Signal, 1)
}

func (s *SigtermService) Start() error {
	signal.Notify(s.term, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(s.term)

	select {
	case sig := <-s.term:
		logs.WithField("signal", sig.String()).Warn("Received signal, stopping")
		return orchestrator.ErrInterrupted
	case <-s.stop:
		return nil
	}
}

func (s *SigtermService) Stop(error) {
	close(s.stop)
}
