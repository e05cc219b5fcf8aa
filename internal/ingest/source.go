package ingest

import (
	"context"
	"log"

	"github.com/cetp/sentinel/internal/stream"
)

// CETPSource yields CETP rows in file order. The returned channel is closed
// at end of input (EOF marker); tail sources only close on cancellation.
type CETPSource interface {
	Rows(ctx context.Context) (<-chan stream.CETPRow, error)
}

// FactorySource yields factory rows in file order.
type FactorySource interface {
	Rows(ctx context.Context) (<-chan stream.FactoryRow, error)
}

// ReplayCETPSource reads every CSV in Dir fully, emits all rows in order,
// then closes the channel. Replay of existing input is the canonical mode.
type ReplayCETPSource struct {
	Dir    string
	logger *log.Logger
}

func NewReplayCETPSource(dir string) *ReplayCETPSource {
	return &ReplayCETPSource{
		Dir:    dir,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

func (s *ReplayCETPSource) Rows(ctx context.Context) (<-chan stream.CETPRow, error) {
	paths, err := ListCETPFiles(s.Dir)
	if err != nil {
		return nil, err
	}
	out := make(chan stream.CETPRow, 256)
	go func() {
		defer close(out)
		for _, p := range paths {
			rows, err := ReadCETPFile(p)
			if err != nil {
				s.logger.Printf("skipping unreadable CETP file %s: %v", p, err)
				continue
			}
			s.logger.Printf("replaying %s (%d rows)", p, len(rows))
			for _, row := range rows {
				select {
				case out <- row:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ReplayFactorySource reads every factory_*.csv in Dir fully, emits all rows
// in per-file order, then closes the channel.
type ReplayFactorySource struct {
	Dir    string
	logger *log.Logger
}

func NewReplayFactorySource(dir string) *ReplayFactorySource {
	return &ReplayFactorySource{
		Dir:    dir,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

func (s *ReplayFactorySource) Rows(ctx context.Context) (<-chan stream.FactoryRow, error) {
	paths, err := ListFactoryFiles(s.Dir)
	if err != nil {
		return nil, err
	}
	out := make(chan stream.FactoryRow, 256)
	go func() {
		defer close(out)
		for _, p := range paths {
			rows, err := ReadFactoryFile(p)
			if err != nil {
				s.logger.Printf("skipping unreadable factory file %s: %v", p, err)
				continue
			}
			s.logger.Printf("replaying %s (%d rows)", p, len(rows))
			for _, row := range rows {
				select {
				case out <- row:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
