package services

import (
	"context"
	"log"
	"time"
)

const defaultSweepInterval = time.Minute

// ExpirySweeper periodically closes sessions whose expiry has passed.
type ExpirySweeper struct {
	directory *SessionDirectory
	interval  time.Duration
	stopChan  chan struct{}
}

func NewExpirySweeper(directory *SessionDirectory, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ExpirySweeper{
		directory: directory,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

func (s *ExpirySweeper) Start() {
	if s.directory == nil {
		return
	}
	go s.loop()
	log.Printf("Expiry sweeper started (every %s)", s.interval)
}

func (s *ExpirySweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *ExpirySweeper) loop() {
	// Run on startup as well as by interval.
	s.sweep(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(context.Background(), time.Now().UTC())
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	closed, err := s.directory.CloseExpired(ctx, now)
	if err != nil {
		log.Printf("expiry sweeper: failed to close expired sessions: %v", err)
		return
	}
	if closed > 0 {
		log.Printf("expiry sweeper: closed %d expired sessions", closed)
	}
}
