package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStartRunsJobImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New("@every 1h", func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("job did not run on start")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New("every minute", func(context.Context) {}, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestStartRejectsNilJob(t *testing.T) {
	s := New("@every 1m", nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error for nil job")
	}
}
